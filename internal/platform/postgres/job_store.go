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

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore
// interface. It accepts a database connection or transaction that should be
// initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

// CreateJob implements store.JobStore.CreateJob.
// Callers that need the job and its items written atomically should invoke
// this through WithTx inside store.RunInTransaction.
func (s *PostgresJobStore) CreateJob(ctx context.Context, job *domain.BatchJob, items []*domain.BatchItem) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("batch job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	jobQuery := `
		INSERT INTO batch_jobs
			(id, user_id, status, total_items, completed_items,
			 successful_items, failed_items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, jobQuery,
		job.ID,
		job.UserID,
		job.Status,
		job.TotalItems,
		job.CompletedItems,
		job.SuccessfulItems,
		job.FailedItems,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create batch job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return fmt.Errorf("failed to create batch job: %w", MapError(err))
	}

	itemQuery := `
		INSERT INTO batch_items
			(id, job_id, position, topic, tier, parameters, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, item := range items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
		}

		paramsJSON, err := json.Marshal(item.Parameters)
		if err != nil {
			return fmt.Errorf("failed to marshal item parameters: %w", err)
		}

		_, err = s.db.ExecContext(ctx, itemQuery,
			item.ID,
			item.JobID,
			item.Position,
			item.Topic,
			item.Tier,
			paramsJSON,
			item.Status,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if err != nil {
			log.Error("failed to create batch item",
				slog.String("error", err.Error()),
				slog.String("item_id", item.ID.String()),
				slog.String("job_id", job.ID.String()))
			return fmt.Errorf("failed to create batch item: %w", MapError(err))
		}
	}

	log.Info("batch job created",
		slog.String("job_id", job.ID.String()),
		slog.Int("total_items", job.TotalItems))
	return nil
}

// GetJobByID implements store.JobStore.GetJobByID.
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) GetJobByID(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, status, total_items, completed_items,
		       successful_items, failed_items, created_at, updated_at, completed_at
		FROM batch_jobs
		WHERE id = $1
	`

	var job domain.BatchJob
	var status string
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.UserID,
		&status,
		&job.TotalItems,
		&job.CompletedItems,
		&job.SuccessfulItems,
		&job.FailedItems,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("batch job not found", slog.String("job_id", id.String()))
			return nil, store.ErrJobNotFound
		}
		log.Error("failed to get batch job by ID",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

// UpdateJobStatus implements store.JobStore.UpdateJobStatus.
// Returns store.ErrJobNotFound if the job does not exist.
func (s *PostgresJobStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	query := `
		UPDATE batch_jobs
		SET status = $1,
		    updated_at = $2,
		    completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled')
		                        THEN $2 ELSE completed_at END
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, now, id)
	if err != nil {
		log.Error("failed to update batch job status",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()),
			slog.String("status", string(status)))
		return fmt.Errorf("failed to update batch job status: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return store.ErrJobNotFound
	}

	log.Info("batch job status updated",
		slog.String("job_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

// ClaimNextItem implements store.JobStore.ClaimNextItem.
// The claim is a single conditional UPDATE over the first queued item, so
// two overlapping poll invocations can never claim the same item: the row
// moves out of the queued state in the same statement that selects it.
func (s *PostgresJobStore) ClaimNextItem(ctx context.Context, jobID uuid.UUID) (*domain.BatchItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE batch_items
		SET status = 'processing', updated_at = $2
		WHERE id = (
			SELECT id FROM batch_items
			WHERE job_id = $1 AND status = 'queued'
			ORDER BY position
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, job_id, position, topic, tier, parameters, status,
		          conversation_id, error_message, created_at, updated_at
	`

	item, err := scanItem(s.db.QueryRowContext(ctx, query, jobID, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoQueuedItems
		}
		log.Error("failed to claim next batch item",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return nil, fmt.Errorf("failed to claim next batch item: %w", err)
	}

	log.Debug("batch item claimed",
		slog.String("item_id", item.ID.String()),
		slog.String("job_id", jobID.String()))
	return item, nil
}

// CompleteItem implements store.JobStore.CompleteItem.
// The item update and the job counter increments are two statements; callers
// must run them inside one transaction (WithTx + store.RunInTransaction) so
// completed = successful + failed holds at every observation point.
func (s *PostgresJobStore) CompleteItem(
	ctx context.Context,
	itemID uuid.UUID,
	status domain.ItemStatus,
	conversationID *uuid.UUID,
	errorMessage string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if status != domain.ItemStatusCompleted && status != domain.ItemStatusFailed {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidItemStatus)
	}

	now := time.Now().UTC()

	itemQuery := `
		UPDATE batch_items
		SET status = $1, conversation_id = $2, error_message = $3, updated_at = $4
		WHERE id = $5 AND status = 'processing'
		RETURNING job_id
	`

	var jobID uuid.UUID
	err := s.db.QueryRowContext(ctx, itemQuery, status, conversationID, errorMessage, now, itemID).
		Scan(&jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrItemNotFound
		}
		log.Error("failed to complete batch item",
			slog.String("error", err.Error()),
			slog.String("item_id", itemID.String()))
		return fmt.Errorf("failed to complete batch item: %w", MapError(err))
	}

	jobQuery := `
		UPDATE batch_jobs
		SET completed_items  = completed_items + 1,
		    successful_items = successful_items + CASE WHEN $1 = 'completed' THEN 1 ELSE 0 END,
		    failed_items     = failed_items + CASE WHEN $1 = 'failed' THEN 1 ELSE 0 END,
		    updated_at       = $2
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, jobQuery, status, now, jobID); err != nil {
		log.Error("failed to increment batch job counters",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return fmt.Errorf("failed to increment batch job counters: %w", MapError(err))
	}

	log.Debug("batch item completed",
		slog.String("item_id", itemID.String()),
		slog.String("job_id", jobID.String()),
		slog.String("status", string(status)))
	return nil
}

// MarkItemProcessing implements store.JobStore.MarkItemProcessing.
func (s *PostgresJobStore) MarkItemProcessing(ctx context.Context, itemID uuid.UUID) error {
	query := `
		UPDATE batch_items
		SET status = 'processing', updated_at = $1
		WHERE id = $2 AND status IN ('queued', 'processing')
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("failed to mark item processing: %w", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check item update: %w", err)
	}
	if affected == 0 {
		return store.ErrItemNotFound
	}

	return nil
}

// CountQueuedItems implements store.JobStore.CountQueuedItems.
func (s *PostgresJobStore) CountQueuedItems(ctx context.Context, jobID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM batch_items WHERE job_id = $1 AND status = 'queued'`

	var count int
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queued items: %w", MapError(err))
	}

	return count, nil
}

// RequeueFailedItems implements store.JobStore.RequeueFailedItems.
// The item reset and the counter decrements are two statements; callers must
// run them inside one transaction.
func (s *PostgresJobStore) RequeueFailedItems(ctx context.Context, jobID uuid.UUID) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()

	itemQuery := `
		UPDATE batch_items
		SET status = 'queued', error_message = '', updated_at = $1
		WHERE job_id = $2 AND status = 'failed'
	`

	result, err := s.db.ExecContext(ctx, itemQuery, now, jobID)
	if err != nil {
		log.Error("failed to requeue failed items",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return 0, fmt.Errorf("failed to requeue failed items: %w", MapError(err))
	}

	requeued, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued items: %w", err)
	}

	if requeued == 0 {
		return 0, nil
	}

	jobQuery := `
		UPDATE batch_jobs
		SET completed_items = completed_items - $1,
		    failed_items    = failed_items - $1,
		    updated_at      = $2
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, jobQuery, requeued, now, jobID); err != nil {
		log.Error("failed to decrement batch job counters",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return 0, fmt.Errorf("failed to decrement batch job counters: %w", MapError(err))
	}

	log.Debug("failed items requeued",
		slog.String("job_id", jobID.String()),
		slog.Int64("requeued", requeued))
	return int(requeued), nil
}

// GetItemsByJobID implements store.JobStore.GetItemsByJobID.
func (s *PostgresJobStore) GetItemsByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.BatchItem, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, job_id, position, topic, tier, parameters, status,
		       conversation_id, error_message, created_at, updated_at
		FROM batch_items
		WHERE job_id = $1
		ORDER BY position
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		log.Error("failed to query batch items",
			slog.String("error", err.Error()),
			slog.String("job_id", jobID.String()))
		return nil, fmt.Errorf("failed to query batch items: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.BatchItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch item rows: %w", err)
	}

	return items, nil
}

// WithTx implements store.JobStore.WithTx.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{
		db:     tx,
		logger: s.logger,
	}
}

// scanItem maps one database row to a domain.BatchItem.
func scanItem(row rowScanner) (*domain.BatchItem, error) {
	var item domain.BatchItem
	var status string
	var tier sql.NullString
	var paramsJSON []byte
	var conversationID uuid.NullUUID
	var errorMessage sql.NullString

	err := row.Scan(
		&item.ID,
		&item.JobID,
		&item.Position,
		&item.Topic,
		&tier,
		&paramsJSON,
		&status,
		&conversationID,
		&errorMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = domain.ItemStatus(status)
	item.Tier = tier.String
	item.ErrorMessage = errorMessage.String

	if conversationID.Valid {
		id := conversationID.UUID
		item.ConversationID = &id
	}

	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &item.Parameters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item parameters: %w", err)
		}
	}

	return &item, nil
}
