package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
)

// DraftStore defines the interface for auto-saved conversation drafts.
// The dashboard writes drafts; this subsystem only lists them during
// recovery scanning and deletes them once recovered.
// Version: 1.0
type DraftStore interface {
	// ListDrafts retrieves all stored drafts, most recently updated first.
	ListDrafts(ctx context.Context) ([]*domain.Draft, error)

	// DeleteDraft removes a draft by ID.
	// Returns ErrDraftNotFound if the draft does not exist.
	DeleteDraft(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new DraftStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) DraftStore
}
