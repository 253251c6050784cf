package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(drafts *fakeDraftStore, checkpoints *fakeCheckpointStore) *Executor {
	if drafts == nil {
		drafts = &fakeDraftStore{}
	}
	if checkpoints == nil {
		checkpoints = &fakeCheckpointStore{}
	}
	return NewExecutor(drafts, checkpoints, nil)
}

func TestRecoverItem_DraftDeletesFromStore(t *testing.T) {
	draftID := uuid.New()
	drafts := &fakeDraftStore{drafts: []*domain.Draft{{ID: draftID, Topic: "stale"}}}
	e := newTestExecutor(drafts, nil)

	item := &RecoverableItem{
		ID:   "DRAFT_CONVERSATION-" + draftID.String(),
		Type: ItemTypeDraftConversation,
		Data: DraftData{DraftID: draftID, Topic: "stale", TurnCount: 2},
	}

	message, err := e.RecoverItem(context.Background(), item)
	require.NoError(t, err)
	assert.Contains(t, message, "stale")
	assert.Equal(t, []uuid.UUID{draftID}, drafts.deleted)
}

func TestRecoverItem_DraftAlreadyGoneIsSuccess(t *testing.T) {
	e := newTestExecutor(&fakeDraftStore{}, nil)

	item := &RecoverableItem{
		Type: ItemTypeDraftConversation,
		Data: DraftData{DraftID: uuid.New(), Topic: "gone"},
	}

	_, err := e.RecoverItem(context.Background(), item)
	assert.NoError(t, err, "a draft no longer in storage satisfies the recovery goal")
}

func TestRecoverItem_BatchCleansUpCheckpoint(t *testing.T) {
	jobID := uuid.New()
	checkpoints := &fakeCheckpointStore{}
	e := newTestExecutor(nil, checkpoints)

	item := &RecoverableItem{
		Type: ItemTypeIncompleteBatch,
		Data: BatchData{JobID: jobID, ProgressPct: 40},
	}

	message, err := e.RecoverItem(context.Background(), item)
	require.NoError(t, err)
	assert.Contains(t, message, "40%")
	assert.Equal(t, []uuid.UUID{jobID}, checkpoints.cleanedUp)
}

func TestRecoverItem_BatchCleanupFailurePropagates(t *testing.T) {
	checkpoints := &fakeCheckpointStore{cleanupErr: errors.New("connection refused")}
	e := newTestExecutor(nil, checkpoints)

	item := &RecoverableItem{
		Type: ItemTypeIncompleteBatch,
		Data: BatchData{JobID: uuid.New()},
	}

	_, err := e.RecoverItem(context.Background(), item)
	assert.ErrorContains(t, err, "failed to clean up checkpoint")
}

func TestRecoverItem_InformationalTypes(t *testing.T) {
	e := newTestExecutor(nil, nil)

	t.Run("available_backup", func(t *testing.T) {
		message, err := e.RecoverItem(context.Background(), &RecoverableItem{
			Type: ItemTypeAvailableBackup,
			Data: BackupData{BackupID: "backup-7", RecordCount: 12},
		})
		require.NoError(t, err)
		assert.Contains(t, message, "backup-7")
		assert.Contains(t, message, "12")
	})

	t.Run("failed_export", func(t *testing.T) {
		exportID := uuid.New()
		message, err := e.RecoverItem(context.Background(), &RecoverableItem{
			Type: ItemTypeFailedExport,
			Data: ExportData{ExportID: exportID, Format: "jsonl"},
		})
		require.NoError(t, err)
		assert.Contains(t, message, exportID.String())
		assert.Contains(t, message, "jsonl")
	})
}

func TestRecoverItem_UnknownTypeFails(t *testing.T) {
	e := newTestExecutor(nil, nil)

	_, err := e.RecoverItem(context.Background(), &RecoverableItem{
		Type: ItemType("ORPHANED_WIDGET"),
	})
	assert.ErrorIs(t, err, ErrUnknownItemType)
}

func TestRecoverItem_MismatchedDataFails(t *testing.T) {
	e := newTestExecutor(nil, nil)

	_, err := e.RecoverItem(context.Background(), &RecoverableItem{
		ID:   "DRAFT_CONVERSATION-x",
		Type: ItemTypeDraftConversation,
		Data: BatchData{JobID: uuid.New()},
	})
	assert.ErrorIs(t, err, ErrInvalidItemData)
}

func TestRecoverItems_MixedOutcomes(t *testing.T) {
	draftID := uuid.New()
	drafts := &fakeDraftStore{drafts: []*domain.Draft{{ID: draftID, Topic: "ok"}}}
	checkpoints := &fakeCheckpointStore{cleanupErr: errors.New("connection refused")}
	e := NewExecutor(drafts, checkpoints, nil)

	items := []*RecoverableItem{
		{
			ID:     "a",
			Type:   ItemTypeDraftConversation,
			Status: StatusPending,
			Data:   DraftData{DraftID: draftID, Topic: "ok"},
		},
		{
			ID:     "b",
			Type:   ItemTypeIncompleteBatch,
			Status: StatusPending,
			Data:   BatchData{JobID: uuid.New()},
		},
		{
			ID:     "c",
			Type:   ItemTypeDraftConversation,
			Status: StatusSkipped,
			Data:   DraftData{DraftID: uuid.New()},
		},
	}

	var progress []int
	summary := e.RecoverItems(context.Background(), items, func(item *RecoverableItem, pct int) {
		progress = append(progress, pct)
	})

	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Equal(t, summary.TotalItems, summary.SuccessCount+summary.FailedCount+summary.SkippedCount)
	assert.False(t, summary.Timestamp.IsZero())

	require.Len(t, summary.Results, 3)
	assert.Equal(t, StatusSuccess, summary.Results[0].Status)
	assert.Equal(t, StatusFailed, summary.Results[1].Status)
	assert.NotEmpty(t, summary.Results[1].Error)
	assert.Equal(t, StatusSkipped, summary.Results[2].Status)

	assert.Equal(t, StatusSuccess, items[0].Status)
	assert.Equal(t, StatusFailed, items[1].Status)
	assert.Equal(t, StatusSkipped, items[2].Status, "skipped items are never touched")

	assert.Equal(t, []int{33, 66, 100}, progress)
}

func TestRecoverItems_SkippedItemsNeverInvokeRecovery(t *testing.T) {
	// An unknown type would fail if dispatched; skipping must short-circuit
	// before dispatch.
	e := newTestExecutor(nil, nil)

	items := []*RecoverableItem{{
		ID:     "x",
		Type:   ItemType("ORPHANED_WIDGET"),
		Status: StatusSkipped,
	}}

	summary := e.RecoverItems(context.Background(), items, nil)
	assert.Equal(t, 1, summary.SkippedCount)
	assert.Zero(t, summary.FailedCount)
}

func TestRecoverItems_EmptyList(t *testing.T) {
	e := newTestExecutor(nil, nil)

	summary := e.RecoverItems(context.Background(), nil, nil)
	assert.Zero(t, summary.TotalItems)
	assert.Empty(t, summary.Results)
}

func TestRecoverItems_FreshDetectionTimestamps(t *testing.T) {
	before := time.Now().UTC()
	e := newTestExecutor(nil, nil)

	summary := e.RecoverItems(context.Background(), nil, nil)
	assert.False(t, summary.Timestamp.Before(before))
}
