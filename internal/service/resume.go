package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/tributary-api/internal/batch"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
)

// ResumeResult reports the outcome of a checkpointed resume run.
type ResumeResult struct {
	Status      PollStatus         `json:"status"`
	Completed   int                `json:"completed"`
	Failed      int                `json:"failed"`
	Skipped     int                `json:"skipped"`
	ProgressPct int                `json:"progressPct"`
	Progress    domain.JobProgress `json:"progress"`
}

// ResumeJob processes all of a job's remaining items in one server-side run,
// checkpointing after every item so an interruption can pick up where this
// run stopped. It complements the poll endpoint: polling suits callers under
// a per-invocation time limit, resuming suits long-lived ones. Items the
// checkpoint or the database already record as done are never reprocessed;
// retryFailed re-queues items the checkpoint recorded as failed.
func (s *JobExecutionService) ResumeJob(
	ctx context.Context,
	jobID uuid.UUID,
	retryFailed bool,
) (*ResumeResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("job_id", jobID.String()))

	job, err := s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status == domain.JobStatusCancelled {
		return &ResumeResult{
			Status:   PollStatusJobCancelled,
			Progress: job.Progress(),
		}, nil
	}

	// A finished job stays finished unless the caller explicitly asks to
	// retry its failures, which reopens it for one more run.
	if job.IsTerminal() && (!retryFailed || job.FailedItems == 0) {
		return &ResumeResult{
			Status:      PollStatusJobCompleted,
			ProgressPct: 100,
			Progress:    job.Progress(),
		}, nil
	}

	if retryFailed {
		err := s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			requeued, err := s.jobs.WithTx(tx).RequeueFailedItems(ctx, jobID)
			if err != nil {
				return err
			}
			if requeued > 0 {
				log.Info("requeued failed items for retry", slog.Int("requeued", requeued))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to requeue failed items: %w", err)
		}
	}

	items, err := s.jobs.GetItemsByJobID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job items: %w", err)
	}

	// Items the database already recorded as terminal belong to earlier
	// runs; only the rest are candidates for this one.
	var pending []*domain.BatchItem
	for _, item := range items {
		if item.Status == domain.ItemStatusCompleted || item.Status == domain.ItemStatusFailed {
			continue
		}
		pending = append(pending, item)
	}

	if job.Status != domain.JobStatusProcessing {
		if err := s.jobs.UpdateJobStatus(ctx, jobID, domain.JobStatusProcessing); err != nil {
			return nil, fmt.Errorf("failed to mark job processing: %w", err)
		}
	}

	res, err := s.processor.Resume(ctx, jobID, pending, s.resumeProcessFunc(job), batch.Options{
		RetryFailed: retryFailed,
		OnProgress: func(percentage, completed, failed int) {
			log.Debug("resume progress",
				slog.Int("percentage", percentage),
				slog.Int("completed", completed),
				slog.Int("failed", failed))
		},
	})
	if err != nil {
		return nil, err
	}

	result := &ResumeResult{
		Status:      PollStatusProcessed,
		Completed:   len(res.CompletedItems),
		Failed:      len(res.FailedItems),
		Skipped:     res.SkippedItems,
		ProgressPct: res.ProgressPct,
	}

	remaining, err := s.jobs.CountQueuedItems(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count queued items: %w", err)
	}

	if remaining == 0 {
		job, err = s.jobs.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload job: %w", err)
		}
		if _, err := s.finalizeJob(ctx, job); err != nil {
			return nil, err
		}
		if err := s.processor.Cleanup(ctx, jobID); err != nil {
			return nil, fmt.Errorf("failed to clean up checkpoint: %w", err)
		}
		result.Status = PollStatusJobCompleted
	}

	job, err = s.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload job: %w", err)
	}
	result.Progress = job.Progress()

	return result, nil
}

// resumeProcessFunc adapts item generation and persistence to the batch
// processor's per-item contract: an error marks the item failed without
// stopping the run.
func (s *JobExecutionService) resumeProcessFunc(job *domain.BatchJob) batch.ProcessFunc {
	return func(ctx context.Context, item *domain.BatchItem) error {
		if err := s.jobs.MarkItemProcessing(ctx, item.ID); err != nil {
			return fmt.Errorf("failed to mark item processing: %w", err)
		}

		conv, genErr := s.generateItem(ctx, job, item)
		if genErr != nil {
			err := s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
				return s.jobs.WithTx(tx).CompleteItem(ctx, item.ID, domain.ItemStatusFailed, nil, genErr.Error())
			})
			if err != nil {
				return fmt.Errorf("failed to record item failure: %w", err)
			}
			s.appendLog(ctx, job.ID, fmt.Sprintf("item %s failed: %s", item.ID, genErr.Error()))
			return genErr
		}

		err := s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if err := s.conversations.WithTx(tx).Create(ctx, conv); err != nil {
				return err
			}
			return s.jobs.WithTx(tx).CompleteItem(ctx, item.ID, domain.ItemStatusCompleted, &conv.ID, "")
		})
		if err != nil {
			return fmt.Errorf("failed to record item completion: %w", err)
		}

		s.appendLog(ctx, job.ID, fmt.Sprintf("item %s completed: conversation %s", item.ID, conv.ID))
		return nil
	}
}
