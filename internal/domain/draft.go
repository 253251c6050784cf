package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyDraftID is returned when a draft has no identifier.
var ErrEmptyDraftID = errors.New("draft ID cannot be empty")

// Draft is an unsaved conversation captured by the dashboard's auto-save.
// Drafts live outside the normal conversation lifecycle; the recovery pass
// is the only part of this subsystem that touches them.
type Draft struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Topic          string     `json:"topic"`
	Turns          []Turn     `json:"turns"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Validate checks if the Draft has valid data.
func (d *Draft) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDraftID
	}

	return nil
}
