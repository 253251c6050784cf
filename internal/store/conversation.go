package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
)

// ConversationStore defines the interface for conversation persistence.
// Version: 1.0
type ConversationStore interface {
	// Create saves a new conversation to the store.
	Create(ctx context.Context, conv *domain.Conversation) error

	// GetByID retrieves a conversation by its unique ID.
	// Returns ErrConversationNotFound if the conversation does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)

	// GetByIDs retrieves the full records for the given IDs, turns included.
	// Returns ErrConversationNotFound if any requested ID is missing: the
	// backup service must never write a partial snapshot.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Conversation, error)

	// Delete removes the conversations with the given IDs.
	Delete(ctx context.Context, ids []uuid.UUID) error

	// WithTx returns a new ConversationStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ConversationStore
}

// TemplateStore defines the lookup interface for prompt templates, used by
// the fallback auto-selection chain when a batch item declares no template.
// Version: 1.0
type TemplateStore interface {
	// GetByID retrieves a template by its unique ID.
	// Returns ErrTemplateNotFound if the template does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PromptTemplate, error)

	// FindByArc retrieves the first template matching the arc key and tier.
	// An empty tier matches any tier. Returns ErrTemplateNotFound when no
	// template matches.
	FindByArc(ctx context.Context, arcKey, tier string) (*domain.PromptTemplate, error)

	// WithTx returns a new TemplateStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TemplateStore
}
