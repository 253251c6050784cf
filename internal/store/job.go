package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
)

// JobStore defines the interface for batch job and batch item persistence.
// The database is the sole source of truth for the poll-driven execution
// model: invocations are stateless and must never trust in-memory state
// across calls.
// Version: 1.0
type JobStore interface {
	// CreateJob saves a new batch job together with its items in a single
	// transaction. Items are stored in the given order with their positions
	// assigned.
	CreateJob(ctx context.Context, job *domain.BatchJob, items []*domain.BatchItem) error

	// GetJobByID retrieves a batch job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetJobByID(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error)

	// UpdateJobStatus updates the status of a batch job. Terminal statuses
	// also stamp completed_at.
	// Returns ErrJobNotFound if the job does not exist.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error

	// ClaimNextItem atomically claims the first queued item of the job,
	// moving it to processing, and returns the claimed item. The claim is a
	// conditional update ("set processing where status is queued") so that
	// overlapping poll invocations can never claim the same item twice.
	// Returns ErrNoQueuedItems when nothing is left to claim.
	ClaimNextItem(ctx context.Context, jobID uuid.UUID) (*domain.BatchItem, error)

	// CompleteItem marks a claimed item completed or failed and increments
	// the job's counters in the same transaction, preserving the invariant
	// completed = successful + failed. conversationID links the generated
	// artifact on success; errorMessage records the failure otherwise.
	CompleteItem(ctx context.Context, itemID uuid.UUID, status domain.ItemStatus, conversationID *uuid.UUID, errorMessage string) error

	// MarkItemProcessing transitions a specific item to processing ahead of
	// direct execution, bypassing queue-order claiming. Items already
	// processing, left over from an interrupted run, pass through unchanged.
	// Returns ErrItemNotFound if the item does not exist or is terminal.
	MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error

	// CountQueuedItems returns how many items of the job are still queued.
	CountQueuedItems(ctx context.Context, jobID uuid.UUID) (int, error)

	// RequeueFailedItems moves every failed item of the job back to queued
	// and decrements the job's completed and failed counters to match,
	// preserving the invariant completed = successful + failed. Returns how
	// many items were requeued. Wrap in a transaction alongside any
	// checkpoint rewrite.
	RequeueFailedItems(ctx context.Context, jobID uuid.UUID) (int, error)

	// GetItemsByJobID retrieves all items of a job in position order.
	GetItemsByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.BatchItem, error)

	// WithTx returns a new JobStore instance that uses the provided transaction.
	// The transaction should be created and managed by the caller (typically a service).
	WithTx(tx *sql.Tx) JobStore
}

// JobLogStore persists append-only per-job log lines, one row per entry.
// Version: 1.0
type JobLogStore interface {
	// AppendLog inserts a single log line for the job.
	AppendLog(ctx context.Context, jobID uuid.UUID, message string) error

	// GetLogs retrieves the job's log lines in insertion order.
	GetLogs(ctx context.Context, jobID uuid.UUID) ([]string, error)
}
