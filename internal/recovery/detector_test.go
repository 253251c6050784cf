package recovery

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDraftStore struct {
	drafts  []*domain.Draft
	listErr error
	deleted []uuid.UUID
}

func (f *fakeDraftStore) ListDrafts(ctx context.Context) ([]*domain.Draft, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.drafts, nil
}

func (f *fakeDraftStore) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	for i, d := range f.drafts {
		if d.ID == id {
			f.drafts = append(f.drafts[:i], f.drafts[i+1:]...)
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return store.ErrDraftNotFound
}

func (f *fakeDraftStore) WithTx(tx *sql.Tx) store.DraftStore { return f }

type fakeCheckpointStore struct {
	checkpoints []*domain.BatchCheckpoint
	listErr     error
	cleanedUp   []uuid.UUID
	cleanupErr  error
}

func (f *fakeCheckpointStore) Save(
	ctx context.Context,
	jobID uuid.UUID,
	completedIDs []string,
	failedItems []domain.FailedItem,
	totalItems int,
) error {
	return nil
}

func (f *fakeCheckpointStore) Load(ctx context.Context, jobID uuid.UUID) (*domain.BatchCheckpoint, error) {
	return nil, store.ErrCheckpointNotFound
}

func (f *fakeCheckpointStore) Cleanup(ctx context.Context, jobID uuid.UUID) error {
	if f.cleanupErr != nil {
		return f.cleanupErr
	}
	f.cleanedUp = append(f.cleanedUp, jobID)
	return nil
}

func (f *fakeCheckpointStore) ListIncomplete(ctx context.Context) ([]*domain.BatchCheckpoint, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.checkpoints, nil
}

func (f *fakeCheckpointStore) WithTx(tx *sql.Tx) store.CheckpointStore { return f }

type fakeBackupStore struct {
	backups []*domain.Backup
	listErr error
}

func (f *fakeBackupStore) Create(ctx context.Context, backup *domain.Backup) error { return nil }

func (f *fakeBackupStore) GetByBackupID(ctx context.Context, backupID string) (*domain.Backup, error) {
	return nil, store.ErrBackupNotFound
}

func (f *fakeBackupStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Backup, error) {
	return nil, nil
}

func (f *fakeBackupStore) ListExpired(ctx context.Context, before time.Time) ([]*domain.Backup, error) {
	return nil, nil
}

func (f *fakeBackupStore) ListActive(ctx context.Context, now time.Time) ([]*domain.Backup, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.backups, nil
}

func (f *fakeBackupStore) Delete(ctx context.Context, backupID string) error { return nil }

func (f *fakeBackupStore) WithTx(tx *sql.Tx) store.BackupStore { return f }

type fakeExportLogStore struct {
	records []*domain.ExportRecord
	listErr error
}

func (f *fakeExportLogStore) ListFailed(ctx context.Context, limit int) ([]*domain.ExportRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeExportLogStore) WithTx(tx *sql.Tx) store.ExportLogStore { return f }

func newTestDetector(
	drafts *fakeDraftStore,
	checkpoints *fakeCheckpointStore,
	backups *fakeBackupStore,
	exports *fakeExportLogStore,
) *Detector {
	if drafts == nil {
		drafts = &fakeDraftStore{}
	}
	if checkpoints == nil {
		checkpoints = &fakeCheckpointStore{}
	}
	if backups == nil {
		backups = &fakeBackupStore{}
	}
	if exports == nil {
		exports = &fakeExportLogStore{}
	}
	return NewDetector(drafts, checkpoints, backups, exports, nil)
}

func TestDetect_NormalizesDraftAndCheckpoint(t *testing.T) {
	now := time.Now().UTC()
	draftID := uuid.New()
	jobID := uuid.New()

	drafts := &fakeDraftStore{drafts: []*domain.Draft{{
		ID:        draftID,
		Topic:     "Test Draft",
		Turns:     []domain.Turn{{}, {}, {}, {}, {}},
		CreatedAt: now,
		UpdatedAt: now,
	}}}
	checkpoints := &fakeCheckpointStore{checkpoints: []*domain.BatchCheckpoint{{
		JobID:              jobID,
		CompletedItems:     []string{"a", "b"},
		FailedItems:        []domain.FailedItem{{ItemID: "c", Error: "x"}},
		ProgressPercentage: 50,
		LastCheckpointAt:   now,
	}}}

	d := newTestDetector(drafts, checkpoints, nil, nil)
	items := d.Detect(context.Background())

	require.Len(t, items, 2)

	// The draft type carries the higher base weight, so it sorts first.
	assert.Equal(t, ItemTypeDraftConversation, items[0].Type)
	assert.Equal(t, "DRAFT_CONVERSATION-"+draftID.String(), items[0].ID)
	assert.Equal(t, StatusPending, items[0].Status)
	assert.Contains(t, items[0].Description, "Test Draft")
	assert.Contains(t, items[0].Description, "5 turns")
	require.IsType(t, DraftData{}, items[0].Data)
	assert.Equal(t, 5, items[0].Data.(DraftData).TurnCount)

	assert.Equal(t, ItemTypeIncompleteBatch, items[1].Type)
	assert.Equal(t, "INCOMPLETE_BATCH-"+jobID.String(), items[1].ID)
	require.IsType(t, BatchData{}, items[1].Data)
	batchData := items[1].Data.(BatchData)
	assert.Equal(t, jobID, batchData.JobID)
	assert.Equal(t, 50, batchData.ProgressPct)
	assert.Equal(t, 2, batchData.CompletedCount)
	assert.Equal(t, 1, batchData.FailedCount)
}

func TestDetect_SourceIsolation(t *testing.T) {
	now := time.Now().UTC()
	drafts := &fakeDraftStore{drafts: []*domain.Draft{{
		ID:        uuid.New(),
		Topic:     "survivor",
		UpdatedAt: now,
	}}}
	checkpoints := &fakeCheckpointStore{listErr: errors.New("connection refused")}
	backups := &fakeBackupStore{backups: []*domain.Backup{{
		ID:              uuid.New(),
		BackupID:        "backup-1",
		UserID:          uuid.New(),
		FilePath:        "backups/backup-1.json",
		ConversationIDs: []uuid.UUID{uuid.New()},
		ExpiresAt:       now.Add(time.Hour),
		CreatedAt:       now,
	}}}
	exports := &fakeExportLogStore{records: []*domain.ExportRecord{{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Format:    "jsonl",
		Status:    domain.ExportStatusFailed,
		CreatedAt: now,
	}}}

	d := newTestDetector(drafts, checkpoints, backups, exports)
	items := d.Detect(context.Background())

	require.Len(t, items, 3, "broken checkpoint source must not hide the others")
	assert.Equal(t, ItemTypeDraftConversation, items[0].Type)
	assert.Equal(t, ItemTypeAvailableBackup, items[1].Type)
	assert.Equal(t, ItemTypeFailedExport, items[2].Type)
}

func TestDetect_PriorityOrdering(t *testing.T) {
	now := time.Now().UTC()

	// Two drafts with equal work size; the newer one must sort first.
	oldDraft := &domain.Draft{ID: uuid.New(), Topic: "old", Turns: []domain.Turn{{}}, UpdatedAt: now.Add(-48 * time.Hour)}
	newDraft := &domain.Draft{ID: uuid.New(), Topic: "new", Turns: []domain.Turn{{}}, UpdatedAt: now}

	drafts := &fakeDraftStore{drafts: []*domain.Draft{oldDraft, newDraft}}
	checkpoints := &fakeCheckpointStore{checkpoints: []*domain.BatchCheckpoint{{
		JobID:            uuid.New(),
		CompletedItems:   []string{"a"},
		LastCheckpointAt: now,
	}}}

	d := newTestDetector(drafts, checkpoints, nil, nil)
	items := d.Detect(context.Background())

	require.Len(t, items, 3)

	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Priority, items[i].Priority,
			"priorities must be non-increasing")
	}

	// A very recent checkpoint still ranks below the stalest draft: the
	// within-type spread never crosses a type boundary.
	assert.Contains(t, items[0].Description, "new")
	assert.Contains(t, items[1].Description, "old")
	assert.Equal(t, ItemTypeIncompleteBatch, items[2].Type)
}

func TestDetect_EmptySources(t *testing.T) {
	d := newTestDetector(nil, nil, nil, nil)
	items := d.Detect(context.Background())
	assert.Empty(t, items)
}

func TestNewDetector_NilStorePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewDetector(nil, &fakeCheckpointStore{}, &fakeBackupStore{}, &fakeExportLogStore{}, nil)
	})
}

func TestFilterByTypeAndStatusCounts(t *testing.T) {
	items := []*RecoverableItem{
		{ID: "a", Type: ItemTypeDraftConversation, Status: StatusPending},
		{ID: "b", Type: ItemTypeIncompleteBatch, Status: StatusSkipped},
		{ID: "c", Type: ItemTypeDraftConversation, Status: StatusSuccess},
	}

	drafts := FilterByType(items, ItemTypeDraftConversation)
	require.Len(t, drafts, 2)
	assert.Equal(t, "a", drafts[0].ID)
	assert.Equal(t, "c", drafts[1].ID)

	counts := StatusCounts(items)
	assert.Equal(t, 1, counts[StatusPending])
	assert.Equal(t, 1, counts[StatusSkipped])
	assert.Equal(t, 1, counts[StatusSuccess])
}
