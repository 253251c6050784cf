package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/phrazzld/tributary-api/internal/platform/logger"
	"github.com/phrazzld/tributary-api/internal/store"
)

// Base priority weights per item type. Drafts rank highest because they are
// the most volatile: nothing else holds a copy of an unsaved draft.
const (
	draftBasePriority  = 80
	batchBasePriority  = 70
	backupBasePriority = 60
	exportBasePriority = 50
)

// Within-type priority spread stays strictly below the 10-point gap between
// adjacent base weights so item type always dominates the sort.
const priorityScale = 9.9

// failedExportScanLimit caps how many failed exports one scan surfaces.
const failedExportScanLimit = 50

// Detector scans the draft, checkpoint, backup, and export stores for
// incomplete work and normalizes the findings into a single prioritized list.
type Detector struct {
	drafts      store.DraftStore
	checkpoints store.CheckpointStore
	backups     store.BackupStore
	exports     store.ExportLogStore
	logger      *slog.Logger
	now         func() time.Time
}

// NewDetector creates a Detector over the given source stores.
func NewDetector(
	drafts store.DraftStore,
	checkpoints store.CheckpointStore,
	backups store.BackupStore,
	exports store.ExportLogStore,
	logger *slog.Logger,
) *Detector {
	if drafts == nil || checkpoints == nil || backups == nil || exports == nil {
		panic("detector stores cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		drafts:      drafts,
		checkpoints: checkpoints,
		backups:     backups,
		exports:     exports,
		logger:      logger.With(slog.String("component", "recovery_detector")),
		now:         time.Now,
	}
}

// Detect scans all four sources in parallel and returns the normalized items
// sorted by priority descending. A failure scanning one source is logged and
// that source contributes nothing; Detect itself never returns an error, so
// one broken store cannot hide recoverable work in the others.
func (d *Detector) Detect(ctx context.Context) []*RecoverableItem {
	log := logger.FromContextOrDefault(ctx, d.logger)

	scans := []struct {
		source string
		fn     func(context.Context) ([]*RecoverableItem, error)
	}{
		{"drafts", d.scanDrafts},
		{"checkpoints", d.scanCheckpoints},
		{"backups", d.scanBackups},
		{"exports", d.scanExports},
	}

	results := make([][]*RecoverableItem, len(scans))

	var wg sync.WaitGroup
	for i, scan := range scans {
		wg.Add(1)
		go func(i int, source string, fn func(context.Context) ([]*RecoverableItem, error)) {
			defer wg.Done()

			items, err := fn(ctx)
			if err != nil {
				log.Warn("recovery source scan failed",
					slog.String("source", source),
					slog.String("error", err.Error()))
				return
			}
			results[i] = items
		}(i, scan.source, scan.fn)
	}
	wg.Wait()

	var items []*RecoverableItem
	for _, r := range results {
		items = append(items, r...)
	}

	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Priority != items[b].Priority {
			return items[a].Priority > items[b].Priority
		}
		return items[a].Timestamp.After(items[b].Timestamp)
	})

	log.Info("recovery scan finished", slog.Int("items", len(items)))

	return items
}

func (d *Detector) scanDrafts(ctx context.Context) ([]*RecoverableItem, error) {
	drafts, err := d.drafts.ListDrafts(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]*RecoverableItem, 0, len(drafts))
	for _, draft := range drafts {
		turnCount := len(draft.Turns)
		items = append(items, &RecoverableItem{
			ID:          fmt.Sprintf("%s-%s", ItemTypeDraftConversation, draft.ID),
			Type:        ItemTypeDraftConversation,
			Timestamp:   draft.UpdatedAt,
			Description: fmt.Sprintf("Unsaved draft %q with %d turns", draft.Topic, turnCount),
			Priority:    d.priority(draftBasePriority, draft.UpdatedAt, turnCount),
			Status:      StatusPending,
			Data: DraftData{
				DraftID:   draft.ID,
				Topic:     draft.Topic,
				TurnCount: turnCount,
			},
		})
	}
	return items, nil
}

func (d *Detector) scanCheckpoints(ctx context.Context) ([]*RecoverableItem, error) {
	checkpoints, err := d.checkpoints.ListIncomplete(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]*RecoverableItem, 0, len(checkpoints))
	for _, cp := range checkpoints {
		recorded := len(cp.CompletedItems) + len(cp.FailedItems)
		items = append(items, &RecoverableItem{
			ID:   fmt.Sprintf("%s-%s", ItemTypeIncompleteBatch, cp.JobID),
			Type: ItemTypeIncompleteBatch,
			// LastCheckpointAt is the moment progress was last recorded.
			Timestamp: cp.LastCheckpointAt,
			Description: fmt.Sprintf("Batch job at %d%% (%d completed, %d failed)",
				cp.ProgressPercentage, len(cp.CompletedItems), len(cp.FailedItems)),
			Priority: d.priority(batchBasePriority, cp.LastCheckpointAt, recorded),
			Status:   StatusPending,
			Data: BatchData{
				JobID:          cp.JobID,
				ProgressPct:    cp.ProgressPercentage,
				CompletedCount: len(cp.CompletedItems),
				FailedCount:    len(cp.FailedItems),
			},
		})
	}
	return items, nil
}

func (d *Detector) scanBackups(ctx context.Context) ([]*RecoverableItem, error) {
	backups, err := d.backups.ListActive(ctx, d.now().UTC())
	if err != nil {
		return nil, err
	}

	items := make([]*RecoverableItem, 0, len(backups))
	for _, backup := range backups {
		recordCount := len(backup.ConversationIDs)
		items = append(items, &RecoverableItem{
			ID:          fmt.Sprintf("%s-%s", ItemTypeAvailableBackup, backup.BackupID),
			Type:        ItemTypeAvailableBackup,
			Timestamp:   backup.CreatedAt,
			Description: fmt.Sprintf("Backup %s covering %d conversations", backup.BackupID, recordCount),
			Priority:    d.priority(backupBasePriority, backup.CreatedAt, recordCount),
			Status:      StatusPending,
			Data: BackupData{
				BackupID:    backup.BackupID,
				RecordCount: recordCount,
			},
		})
	}
	return items, nil
}

func (d *Detector) scanExports(ctx context.Context) ([]*RecoverableItem, error) {
	exports, err := d.exports.ListFailed(ctx, failedExportScanLimit)
	if err != nil {
		return nil, err
	}

	items := make([]*RecoverableItem, 0, len(exports))
	for _, export := range exports {
		items = append(items, &RecoverableItem{
			ID:          fmt.Sprintf("%s-%s", ItemTypeFailedExport, export.ID),
			Type:        ItemTypeFailedExport,
			Timestamp:   export.CreatedAt,
			Description: fmt.Sprintf("Failed %s export of %d conversations", export.Format, len(export.ConversationIDs)),
			Priority:    d.priority(exportBasePriority, export.CreatedAt, len(export.ConversationIDs)),
			Status:      StatusPending,
			Data: ExportData{
				ExportID: export.ID,
				Format:   export.Format,
			},
		})
	}
	return items, nil
}

// priority combines a type's base weight with a bounded recency/work mix.
// Both components are monotonic, so within a type, newer items and larger
// items always rank at least as high; recency dominates at 0.7 so equal-work
// items sort newest first.
func (d *Detector) priority(base float64, ts time.Time, workSize int) float64 {
	ageHours := d.now().UTC().Sub(ts).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	recencyScore := 1 / (1 + ageHours)
	workScore := float64(workSize) / float64(workSize+10)

	return base + priorityScale*(0.7*recencyScore+0.3*workScore)
}
