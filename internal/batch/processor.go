// Package batch implements resumable batch processing. A processor walks a
// job's items in order, persisting a checkpoint after every attempt so a
// crashed or interrupted run can resume from the last durable snapshot
// instead of starting over.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// ProcessFunc performs the work for a single batch item. An error marks the
// item failed without stopping the run.
type ProcessFunc func(ctx context.Context, item *domain.BatchItem) error

// ProgressFunc observes progress after each item attempt.
type ProgressFunc func(percentage, completed, failed int)

// Options tunes a resumed run.
type Options struct {
	// RetryFailed re-queues items the previous run recorded as failed.
	// By default failed items are skipped exactly like completed ones, so
	// a resume never burns generation quota on items that already failed.
	RetryFailed bool

	// OnProgress, when set, is called after every item attempt.
	OnProgress ProgressFunc
}

// Result is the cumulative outcome of a run, prior checkpoint included.
type Result struct {
	CompletedItems []string
	FailedItems    []domain.FailedItem
	SkippedItems   int
	ProgressPct    int
}

// Processor resumes batch jobs from their last checkpoint.
type Processor struct {
	checkpoints store.CheckpointStore
	logger      *slog.Logger
}

// NewProcessor creates a Processor backed by the given checkpoint store.
func NewProcessor(checkpoints store.CheckpointStore, logger *slog.Logger) *Processor {
	if checkpoints == nil {
		panic("checkpoint store cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		checkpoints: checkpoints,
		logger:      logger.With(slog.String("component", "batch_processor")),
	}
}

// Resume processes the given items for jobID, skipping every item the last
// checkpoint already recorded. Items are attempted in their original order.
// A checkpoint is saved after every attempt; a checkpoint write failure
// aborts the run because continuing would leave progress unrecoverable. Item
// failures never abort the run.
func (p *Processor) Resume(
	ctx context.Context,
	jobID uuid.UUID,
	items []*domain.BatchItem,
	process ProcessFunc,
	opts Options,
) (*Result, error) {
	log := logger.FromContextOrDefault(ctx, p.logger).With(slog.String("job_id", jobID.String()))

	if jobID == uuid.Nil {
		return nil, domain.ErrEmptyCheckpointJobID
	}

	if process == nil {
		return nil, errors.New("process function cannot be nil")
	}

	completed, failed, err := p.loadPrior(ctx, jobID, opts.RetryFailed)
	if err != nil {
		return nil, err
	}

	pending := filterPendingItems(items, completed, failed)
	skipped := len(items) - len(pending)
	total := len(items)

	log.Info("resuming batch run",
		slog.Int("total_items", total),
		slog.Int("skipped_items", skipped),
		slog.Int("pending_items", len(pending)))

	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return p.result(completed, failed, skipped, total), err
		}

		if err := process(ctx, item); err != nil {
			log.Warn("batch item failed",
				slog.String("item_id", item.ID.String()),
				slog.String("error", err.Error()))
			failed = append(failed, domain.FailedItem{
				ItemID:    item.ID.String(),
				Error:     err.Error(),
				Timestamp: time.Now().UTC(),
			})
		} else {
			completed = append(completed, item.ID.String())
		}

		if err := p.checkpoints.Save(ctx, jobID, completed, failed, total); err != nil {
			return p.result(completed, failed, skipped, total),
				fmt.Errorf("failed to save checkpoint: %w", err)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(
				domain.CheckpointProgress(len(completed), len(failed), total),
				len(completed),
				len(failed),
			)
		}
	}

	res := p.result(completed, failed, skipped, total)

	log.Info("batch run finished",
		slog.Int("completed", len(res.CompletedItems)),
		slog.Int("failed", len(res.FailedItems)),
		slog.Int("progress_pct", res.ProgressPct))

	return res, nil
}

// Cleanup removes the job's checkpoint. Call it once the job has reached a
// terminal status; removing a checkpoint that does not exist is not an error.
func (p *Processor) Cleanup(ctx context.Context, jobID uuid.UUID) error {
	return p.checkpoints.Cleanup(ctx, jobID)
}

// loadPrior fetches the job's checkpoint, treating a missing checkpoint as a
// fresh start. With retryFailed set, previously failed items are dropped from
// the failure list so filtering re-queues them.
func (p *Processor) loadPrior(
	ctx context.Context,
	jobID uuid.UUID,
	retryFailed bool,
) ([]string, []domain.FailedItem, error) {
	cp, err := p.checkpoints.Load(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrCheckpointNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	completed := append([]string(nil), cp.CompletedItems...)

	if retryFailed {
		return completed, nil, nil
	}

	failed := append([]domain.FailedItem(nil), cp.FailedItems...)
	return completed, failed, nil
}

func (p *Processor) result(completed []string, failed []domain.FailedItem, skipped, total int) *Result {
	return &Result{
		CompletedItems: completed,
		FailedItems:    failed,
		SkippedItems:   skipped,
		ProgressPct:    domain.CheckpointProgress(len(completed), len(failed), total),
	}
}

// filterPendingItems returns the items not yet recorded, preserving order.
func filterPendingItems(
	items []*domain.BatchItem,
	completed []string,
	failed []domain.FailedItem,
) []*domain.BatchItem {
	done := make(map[string]struct{}, len(completed)+len(failed))
	for _, id := range completed {
		done[id] = struct{}{}
	}
	for _, f := range failed {
		done[f.ItemID] = struct{}{}
	}

	var pending []*domain.BatchItem
	for _, item := range items {
		if _, ok := done[item.ID.String()]; !ok {
			pending = append(pending, item)
		}
	}

	return pending
}
