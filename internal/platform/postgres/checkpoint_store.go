package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// PostgresCheckpointStore implements the store.CheckpointStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCheckpointStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCheckpointStore creates a new PostgreSQL implementation of the
// CheckpointStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresCheckpointStore(db store.DBTX, logger *slog.Logger) *PostgresCheckpointStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCheckpointStore{
		db:     db,
		logger: logger.With(slog.String("component", "checkpoint_store")),
	}
}

// Ensure PostgresCheckpointStore implements store.CheckpointStore interface
var _ store.CheckpointStore = (*PostgresCheckpointStore)(nil)

// Save implements store.CheckpointStore.Save.
// The write is a single native upsert keyed by job_id, not a read-then-write
// pair, so concurrent writers cannot lose each other's updates.
func (s *PostgresCheckpointStore) Save(
	ctx context.Context,
	jobID uuid.UUID,
	completedIDs []string,
	failedItems []domain.FailedItem,
	totalItems int,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if jobID == uuid.Nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyCheckpointJobID)
	}

	if completedIDs == nil {
		completedIDs = []string{}
	}
	if failedItems == nil {
		failedItems = []domain.FailedItem{}
	}

	completedJSON, err := json.Marshal(completedIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal completed items: %w", err)
	}

	failedJSON, err := json.Marshal(failedItems)
	if err != nil {
		return fmt.Errorf("failed to marshal failed items: %w", err)
	}

	progress := domain.CheckpointProgress(len(completedIDs), len(failedItems), totalItems)
	now := time.Now().UTC()

	query := `
		INSERT INTO batch_checkpoints
			(job_id, completed_items, failed_items, progress_percentage,
			 last_checkpoint_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, $5)
		ON CONFLICT (job_id) DO UPDATE SET
			completed_items     = EXCLUDED.completed_items,
			failed_items        = EXCLUDED.failed_items,
			progress_percentage = EXCLUDED.progress_percentage,
			last_checkpoint_at  = EXCLUDED.last_checkpoint_at,
			updated_at          = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query, jobID, completedJSON, failedJSON, progress, now)
	if err != nil {
		log.Error("failed to save batch checkpoint",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()),
			slog.Int("completed_count", len(completedIDs)))
		return fmt.Errorf("failed to save batch checkpoint: %w", MapError(err))
	}

	log.Debug("batch checkpoint saved",
		slog.String("job_id", jobID.String()),
		slog.Int("progress", progress))
	return nil
}

// Load implements store.CheckpointStore.Load.
// Returns store.ErrCheckpointNotFound if no checkpoint exists for the job.
func (s *PostgresCheckpointStore) Load(ctx context.Context, jobID uuid.UUID) (*domain.BatchCheckpoint, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT job_id, completed_items, failed_items, progress_percentage,
		       last_checkpoint_at, created_at, updated_at
		FROM batch_checkpoints
		WHERE job_id = $1
	`

	checkpoint, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("no checkpoint found for job", slog.String("job_id", jobID.String()))
			return nil, store.ErrCheckpointNotFound
		}
		log.Error("failed to load batch checkpoint",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return nil, err
	}

	log.Debug("batch checkpoint loaded",
		slog.String("job_id", jobID.String()),
		slog.Int("progress", checkpoint.ProgressPercentage),
		slog.Int("completed_count", len(checkpoint.CompletedItems)))
	return checkpoint, nil
}

// Cleanup implements store.CheckpointStore.Cleanup.
// Deleting a checkpoint that does not exist is not an error.
func (s *PostgresCheckpointStore) Cleanup(ctx context.Context, jobID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `DELETE FROM batch_checkpoints WHERE job_id = $1`

	_, err := s.db.ExecContext(ctx, query, jobID)
	if err != nil {
		log.Error("failed to cleanup batch checkpoint",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return fmt.Errorf("failed to cleanup batch checkpoint: %w", MapError(err))
	}

	log.Debug("batch checkpoint cleaned up", slog.String("job_id", jobID.String()))
	return nil
}

// ListIncomplete implements store.CheckpointStore.ListIncomplete.
func (s *PostgresCheckpointStore) ListIncomplete(ctx context.Context) ([]*domain.BatchCheckpoint, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT job_id, completed_items, failed_items, progress_percentage,
		       last_checkpoint_at, created_at, updated_at
		FROM batch_checkpoints
		WHERE progress_percentage < 100
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Error("failed to query incomplete checkpoints",
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query incomplete checkpoints: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var checkpoints []*domain.BatchCheckpoint
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			log.Error("failed to scan checkpoint row", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, checkpoint)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}

	log.Debug("incomplete checkpoints loaded", slog.Int("count", len(checkpoints)))
	return checkpoints, nil
}

// WithTx implements store.CheckpointStore.WithTx.
func (s *PostgresCheckpointStore) WithTx(tx *sql.Tx) store.CheckpointStore {
	return &PostgresCheckpointStore{
		db:     tx,
		logger: s.logger,
	}
}

// rowScanner abstracts over *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCheckpoint maps one database row to a domain.BatchCheckpoint.
func scanCheckpoint(row rowScanner) (*domain.BatchCheckpoint, error) {
	var checkpoint domain.BatchCheckpoint
	var completedJSON, failedJSON []byte

	err := row.Scan(
		&checkpoint.JobID,
		&completedJSON,
		&failedJSON,
		&checkpoint.ProgressPercentage,
		&checkpoint.LastCheckpointAt,
		&checkpoint.CreatedAt,
		&checkpoint.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(completedJSON, &checkpoint.CompletedItems); err != nil {
		return nil, fmt.Errorf("failed to unmarshal completed items: %w", err)
	}

	if err := json.Unmarshal(failedJSON, &checkpoint.FailedItems); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed items: %w", err)
	}

	return &checkpoint, nil
}
