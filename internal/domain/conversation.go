package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Conversation
var (
	ErrEmptyConversationID     = errors.New("conversation ID cannot be empty")
	ErrEmptyConversationUserID = errors.New("conversation user ID cannot be empty")
	ErrEmptyConversationTitle  = errors.New("conversation title cannot be empty")
)

// Turn is a single exchange inside a conversation. Role is "user" or
// "assistant"; the generation service decides the actual alternation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation represents a generated training conversation. Only the fields
// needed by the batch, backup, and recovery subsystems are modeled here.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Tier      string    `json:"tier"`
	Turns     []Turn    `json:"turns"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates a new Conversation owned by the given user.
// Returns an error if validation fails.
func NewConversation(userID uuid.UUID, title, tier string, turns []Turn) (*Conversation, error) {
	now := time.Now().UTC()
	conv := &Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		Tier:      tier,
		Turns:     turns,
		Source:    "generated",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := conv.Validate(); err != nil {
		return nil, err
	}

	return conv, nil
}

// Validate checks if the Conversation has valid data.
func (c *Conversation) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyConversationID
	}

	if c.UserID == uuid.Nil {
		return ErrEmptyConversationUserID
	}

	if c.Title == "" {
		return ErrEmptyConversationTitle
	}

	return nil
}
