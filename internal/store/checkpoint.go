package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
)

// CheckpointStore defines the interface for batch checkpoint persistence.
// A checkpoint is the durable progress snapshot that makes batch processing
// resumable: it is upserted after every item attempt and deleted once a job
// reaches 100%.
// Version: 1.0
type CheckpointStore interface {
	// Save atomically upserts the checkpoint for the given job, recomputing
	// the progress percentage from the completed and failed sets against
	// totalItems and stamping last_checkpoint_at with the current time.
	// Write failures must propagate to the caller; progress claims made to
	// users depend on the checkpoint actually being durable.
	Save(ctx context.Context, jobID uuid.UUID, completedIDs []string, failedItems []domain.FailedItem, totalItems int) error

	// Load retrieves the checkpoint for the given job.
	// Returns ErrCheckpointNotFound if no checkpoint exists; callers treat
	// that as "start from the beginning", not as a failure.
	Load(ctx context.Context, jobID uuid.UUID) (*domain.BatchCheckpoint, error)

	// Cleanup deletes the checkpoint for the given job. Deleting a
	// checkpoint that does not exist is not an error.
	Cleanup(ctx context.Context, jobID uuid.UUID) error

	// ListIncomplete retrieves all checkpoints with progress below 100%,
	// most recently updated first. Used by the recovery detection pass.
	ListIncomplete(ctx context.Context) ([]*domain.BatchCheckpoint, error)

	// WithTx returns a new CheckpointStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) CheckpointStore
}
