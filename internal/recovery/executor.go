package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// Executor errors
var (
	// ErrUnknownItemType is returned when an item carries a type the
	// executor has no dispatch arm for.
	ErrUnknownItemType = errors.New("unknown recovery item type")

	// ErrInvalidItemData is returned when an item's payload does not match
	// its declared type.
	ErrInvalidItemData = errors.New("recovery item data does not match its type")
)

// ProgressFunc observes a recovery run after each item is resolved.
type ProgressFunc func(item *RecoverableItem, percentComplete int)

// Executor performs the type-specific repair action for recoverable items.
type Executor struct {
	drafts      store.DraftStore
	checkpoints store.CheckpointStore
	logger      *slog.Logger
}

// NewExecutor creates an Executor over the stores recovery actions touch.
func NewExecutor(drafts store.DraftStore, checkpoints store.CheckpointStore, logger *slog.Logger) *Executor {
	if drafts == nil || checkpoints == nil {
		panic("executor stores cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		drafts:      drafts,
		checkpoints: checkpoints,
		logger:      logger.With(slog.String("component", "recovery_executor")),
	}
}

// RecoverItem performs the repair action for a single item.
//
// Draft recovery deletes the stale draft: success means storage no longer
// holds a copy, not that a conversation was resurrected. Incomplete-batch
// recovery deletes the checkpoint, accepting current progress and stopping
// future resumption. Backup and export items are informational; the returned
// message carries what the caller needs to act on them.
func (e *Executor) RecoverItem(ctx context.Context, item *RecoverableItem) (string, error) {
	switch item.Type {
	case ItemTypeDraftConversation:
		data, ok := item.Data.(DraftData)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrInvalidItemData, item.ID)
		}

		err := e.drafts.DeleteDraft(ctx, data.DraftID)
		if err != nil && !errors.Is(err, store.ErrDraftNotFound) {
			return "", fmt.Errorf("failed to delete draft: %w", err)
		}
		return fmt.Sprintf("draft %q removed", data.Topic), nil

	case ItemTypeIncompleteBatch:
		data, ok := item.Data.(BatchData)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrInvalidItemData, item.ID)
		}

		if err := e.checkpoints.Cleanup(ctx, data.JobID); err != nil {
			return "", fmt.Errorf("failed to clean up checkpoint: %w", err)
		}
		return fmt.Sprintf("checkpoint for job %s removed at %d%% progress", data.JobID, data.ProgressPct), nil

	case ItemTypeAvailableBackup:
		data, ok := item.Data.(BackupData)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrInvalidItemData, item.ID)
		}
		return fmt.Sprintf("backup %s holds %d records and can be restored", data.BackupID, data.RecordCount), nil

	case ItemTypeFailedExport:
		data, ok := item.Data.(ExportData)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrInvalidItemData, item.ID)
		}
		return fmt.Sprintf("export %s (%s) can be retried", data.ExportID, data.Format), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownItemType, item.Type)
	}
}

// RecoverItems resolves the given items in order. Items already SKIPPED are
// counted without invoking RecoverItem; all others transition through
// RECOVERING to SUCCESS or FAILED. A failure on one item never aborts the
// rest of the run.
func (e *Executor) RecoverItems(ctx context.Context, items []*RecoverableItem, onProgress ProgressFunc) *Summary {
	log := logger.FromContextOrDefault(ctx, e.logger)

	summary := &Summary{
		TotalItems: len(items),
		Results:    make([]Result, 0, len(items)),
		Timestamp:  time.Now().UTC(),
	}

	for i, item := range items {
		if item.Status == StatusSkipped {
			summary.SkippedCount++
			summary.Results = append(summary.Results, Result{
				ItemID: item.ID,
				Type:   item.Type,
				Status: StatusSkipped,
			})
		} else {
			item.Status = StatusRecovering

			message, err := e.RecoverItem(ctx, item)
			if err != nil {
				log.Warn("recovery item failed",
					slog.String("item_id", item.ID),
					slog.String("error", err.Error()))
				item.Status = StatusFailed
				summary.FailedCount++
				summary.Results = append(summary.Results, Result{
					ItemID: item.ID,
					Type:   item.Type,
					Status: StatusFailed,
					Error:  err.Error(),
				})
			} else {
				item.Status = StatusSuccess
				summary.SuccessCount++
				summary.Results = append(summary.Results, Result{
					ItemID:  item.ID,
					Type:    item.Type,
					Status:  StatusSuccess,
					Message: message,
				})
			}
		}

		if onProgress != nil {
			onProgress(item, (i+1)*100/len(items))
		}
	}

	log.Info("recovery run finished",
		slog.Int("total", summary.TotalItems),
		slog.Int("success", summary.SuccessCount),
		slog.Int("failed", summary.FailedCount),
		slog.Int("skipped", summary.SkippedCount))

	return summary
}
