// Package service implements the application services that sit between the
// HTTP handlers and the stores: poll-driven batch job execution, job
// lifecycle management, and transaction orchestration.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/batch"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/generation"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// PollStatus is the application-level outcome of one poll invocation. All
// outcomes, including per-item failures, travel in a 200 response body; the
// HTTP status is reserved for malformed requests and unknown jobs.
type PollStatus string

// Poll outcome values
const (
	PollStatusProcessed    PollStatus = "processed"
	PollStatusNoItems      PollStatus = "no_items"
	PollStatusJobCancelled PollStatus = "job_cancelled"
	PollStatusJobCompleted PollStatus = "job_completed"
	PollStatusError        PollStatus = "error"
)

// ProcessResult is what one poll invocation reports back to the caller.
type ProcessResult struct {
	Success        bool               `json:"success"`
	Status         PollStatus         `json:"status"`
	ItemID         *uuid.UUID         `json:"itemId,omitempty"`
	ConversationID *uuid.UUID         `json:"artifactId,omitempty"`
	Error          string             `json:"error,omitempty"`
	RemainingItems int                `json:"remainingItems"`
	Progress       domain.JobProgress `json:"progress"`
}

// ItemRequest describes one item of a job submission.
type ItemRequest struct {
	Topic      string
	Tier       string
	Parameters map[string]any
}

// TxRunner runs a function inside a database transaction. Abstracting this
// keeps the service testable with in-memory stores.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn store.TxFn) error
}

// SQLTxRunner is the production TxRunner over a *sql.DB.
type SQLTxRunner struct {
	db *sql.DB
}

// NewSQLTxRunner creates a TxRunner over the given database handle.
func NewSQLTxRunner(db *sql.DB) *SQLTxRunner {
	if db == nil {
		panic("db cannot be nil")
	}
	return &SQLTxRunner{db: db}
}

// RunInTransaction implements TxRunner.
func (r *SQLTxRunner) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	return store.RunInTransaction(ctx, r.db, fn)
}

// JobExecutionService drives batch jobs one item per invocation. The stores
// are the sole source of truth; the service holds no cross-call state, so
// any number of stateless callers can poll the same job.
type JobExecutionService struct {
	tx            TxRunner
	jobs          store.JobStore
	jobLogs       store.JobLogStore
	templates     store.TemplateStore
	conversations store.ConversationStore
	generator     generation.Generator
	processor     *batch.Processor
	logger        *slog.Logger
}

// NewJobExecutionService creates a JobExecutionService.
func NewJobExecutionService(
	tx TxRunner,
	jobs store.JobStore,
	jobLogs store.JobLogStore,
	templates store.TemplateStore,
	conversations store.ConversationStore,
	generator generation.Generator,
	processor *batch.Processor,
	logger *slog.Logger,
) *JobExecutionService {
	if tx == nil || jobs == nil || jobLogs == nil || templates == nil ||
		conversations == nil || generator == nil || processor == nil {
		panic("job execution service dependencies cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &JobExecutionService{
		tx:            tx,
		jobs:          jobs,
		jobLogs:       jobLogs,
		templates:     templates,
		conversations: conversations,
		generator:     generator,
		processor:     processor,
		logger:        logger.With(slog.String("component", "job_execution_service")),
	}
}

// CreateJob validates and persists a new batch job with its items, all
// queued. The job row and every item row are written in one transaction.
func (s *JobExecutionService) CreateJob(
	ctx context.Context,
	userID uuid.UUID,
	requests []ItemRequest,
) (*domain.BatchJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	job, err := domain.NewBatchJob(userID, len(requests))
	if err != nil {
		return nil, err
	}

	items := make([]*domain.BatchItem, 0, len(requests))
	for i, req := range requests {
		item, err := domain.NewBatchItem(job.ID, i, req.Topic, req.Tier, req.Parameters)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.jobs.WithTx(tx).CreateJob(ctx, job, items)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch job: %w", err)
	}

	log.Info("batch job created",
		slog.String("job_id", job.ID.String()),
		slog.Int("total_items", job.TotalItems))

	return job, nil
}

// GetJob retrieves a job and its items.
func (s *JobExecutionService) GetJob(
	ctx context.Context,
	jobID uuid.UUID,
) (*domain.BatchJob, []*domain.BatchItem, error) {
	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.jobs.GetItemsByJobID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	return job, items, nil
}

// CancelJob moves a job to cancelled. Cancelling a job that is already
// terminal is a no-op returning the job unchanged, so repeated cancel
// requests are safe. An item already claimed by an in-flight poll finishes;
// cancellation is observed at the start of the next invocation.
func (s *JobExecutionService) CancelJob(ctx context.Context, jobID uuid.UUID) (*domain.BatchJob, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.IsTerminal() {
		return job, nil
	}

	if err := s.jobs.UpdateJobStatus(ctx, jobID, domain.JobStatusCancelled); err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}

	s.appendLog(ctx, jobID, "job cancelled by user request")
	log.Info("batch job cancelled", slog.String("job_id", jobID.String()))

	return s.jobs.GetJobByID(ctx, jobID)
}

// ProcessNextItem executes one poll invocation: claim the next queued item,
// generate its conversation, and record the outcome. Generation failures are
// recorded against the item and reported in-body, never returned as an
// error; only store failures and an unknown job propagate.
func (s *JobExecutionService) ProcessNextItem(ctx context.Context, jobID uuid.UUID) (*ProcessResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("job_id", jobID.String()))

	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == domain.JobStatusCancelled {
		return &ProcessResult{
			Success:  true,
			Status:   PollStatusJobCancelled,
			Progress: job.Progress(),
		}, nil
	}

	if job.IsTerminal() {
		return &ProcessResult{
			Success:  true,
			Status:   PollStatusJobCompleted,
			Progress: job.Progress(),
		}, nil
	}

	remaining, err := s.jobs.CountQueuedItems(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count queued items: %w", err)
	}

	if remaining == 0 {
		return s.finalizeJob(ctx, job)
	}

	item, err := s.jobs.ClaimNextItem(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNoQueuedItems) {
			// Lost the race to a concurrent poll; re-check for completion.
			return s.finalizeJob(ctx, job)
		}
		return nil, fmt.Errorf("failed to claim next item: %w", err)
	}

	if job.Status == domain.JobStatusQueued {
		if err := s.jobs.UpdateJobStatus(ctx, jobID, domain.JobStatusProcessing); err != nil {
			return nil, fmt.Errorf("failed to mark job processing: %w", err)
		}
	}

	conv, genErr := s.generateItem(ctx, job, item)

	if genErr != nil {
		log.Warn("item generation failed",
			slog.String("item_id", item.ID.String()),
			slog.String("error", genErr.Error()))

		err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			return s.jobs.WithTx(tx).CompleteItem(ctx, item.ID, domain.ItemStatusFailed, nil, genErr.Error())
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record item failure: %w", err)
		}

		s.appendLog(ctx, jobID, fmt.Sprintf("item %s failed: %s", item.ID, genErr.Error()))
	} else {
		err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if err := s.conversations.WithTx(tx).Create(ctx, conv); err != nil {
				return err
			}
			return s.jobs.WithTx(tx).CompleteItem(ctx, item.ID, domain.ItemStatusCompleted, &conv.ID, "")
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record item completion: %w", err)
		}

		s.appendLog(ctx, jobID, fmt.Sprintf("item %s completed: conversation %s", item.ID, conv.ID))
	}

	job, err = s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload job: %w", err)
	}

	remaining, err = s.jobs.CountQueuedItems(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count queued items: %w", err)
	}

	result := &ProcessResult{
		Success:        genErr == nil,
		Status:         PollStatusProcessed,
		ItemID:         &item.ID,
		RemainingItems: remaining,
		Progress:       job.Progress(),
	}
	if genErr != nil {
		result.Error = genErr.Error()
	} else {
		result.ConversationID = &conv.ID
	}

	return result, nil
}

// finalizeJob moves a drained job to its terminal status and reports it.
// A job where every item failed finishes as failed rather than completed.
func (s *JobExecutionService) finalizeJob(ctx context.Context, job *domain.BatchJob) (*ProcessResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	final := domain.JobStatusCompleted
	if job.SuccessfulItems == 0 {
		final = domain.JobStatusFailed
	}

	if err := s.jobs.UpdateJobStatus(ctx, job.ID, final); err != nil {
		return nil, fmt.Errorf("failed to finalize job: %w", err)
	}

	s.appendLog(ctx, job.ID, fmt.Sprintf("job finished as %s: %d successful, %d failed",
		final, job.SuccessfulItems, job.FailedItems))
	log.Info("batch job finalized",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(final)))

	job, err := s.jobs.GetJobByID(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload job: %w", err)
	}

	return &ProcessResult{
		Success:  true,
		Status:   PollStatusJobCompleted,
		Progress: job.Progress(),
	}, nil
}

// generateItem resolves the item's template and runs the generation call.
func (s *JobExecutionService) generateItem(
	ctx context.Context,
	job *domain.BatchJob,
	item *domain.BatchItem,
) (*domain.Conversation, error) {
	template, err := s.resolveTemplate(ctx, item)
	if err != nil {
		return nil, err
	}

	return s.generator.GenerateConversation(ctx, generation.Request{
		Template:   template,
		Topic:      item.Topic,
		Tier:       item.Tier,
		Parameters: item.Parameters,
		UserID:     job.UserID,
		RunID:      job.ID,
	})
}

// resolveTemplate finds the prompt template for an item. An explicit
// template_id parameter wins; otherwise auto-selection matches the declared
// arc key narrowed by the item's tier, falling back to any tier. An item
// with no resolvable template fails.
func (s *JobExecutionService) resolveTemplate(
	ctx context.Context,
	item *domain.BatchItem,
) (*domain.PromptTemplate, error) {
	if raw, ok := item.Parameters["template_id"].(string); ok && raw != "" {
		templateID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid template_id %q", domain.ErrInvalidID, raw)
		}
		return s.templates.GetByID(ctx, templateID)
	}

	arcKey, _ := item.Parameters["arc_key"].(string)
	if arcKey == "" {
		return nil, fmt.Errorf("%w: item declares neither template_id nor arc_key", domain.ErrValidation)
	}

	if item.Tier != "" {
		template, err := s.templates.FindByArc(ctx, arcKey, item.Tier)
		if err == nil {
			return template, nil
		}
		if !errors.Is(err, store.ErrTemplateNotFound) {
			return nil, err
		}
	}

	return s.templates.FindByArc(ctx, arcKey, "")
}

// appendLog writes a job log line, swallowing failures. Logging is
// best-effort and must never fail the operation it describes.
func (s *JobExecutionService) appendLog(ctx context.Context, jobID uuid.UUID, message string) {
	if err := s.jobLogs.AppendLog(ctx, jobID, message); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to append job log",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()))
	}
}
