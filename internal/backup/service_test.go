package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConversationStore struct {
	conversations map[uuid.UUID]*domain.Conversation
	getErr        error
	deleted       [][]uuid.UUID
	deleteErr     error
}

func newFakeConversationStore(convs ...*domain.Conversation) *fakeConversationStore {
	f := &fakeConversationStore{conversations: make(map[uuid.UUID]*domain.Conversation)}
	for _, c := range convs {
		f.conversations[c.ID] = c
	}
	return f
}

func (f *fakeConversationStore) Create(ctx context.Context, conv *domain.Conversation) error {
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeConversationStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Conversation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}

	out := make([]*domain.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, ok := f.conversations[id]
		if !ok {
			return nil, store.ErrConversationNotFound
		}
		out = append(out, conv)
	}
	return out, nil
}

func (f *fakeConversationStore) Delete(ctx context.Context, ids []uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ids)
	for _, id := range ids {
		delete(f.conversations, id)
	}
	return nil
}

func (f *fakeConversationStore) WithTx(tx *sql.Tx) store.ConversationStore { return f }

type fakeBackupStore struct {
	rows      map[string]*domain.Backup
	createErr error
	deleteErr error
}

func newFakeBackupStore() *fakeBackupStore {
	return &fakeBackupStore{rows: make(map[string]*domain.Backup)}
}

func (f *fakeBackupStore) Create(ctx context.Context, backup *domain.Backup) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.rows[backup.BackupID] = backup
	return nil
}

func (f *fakeBackupStore) GetByBackupID(ctx context.Context, backupID string) (*domain.Backup, error) {
	backup, ok := f.rows[backupID]
	if !ok {
		return nil, store.ErrBackupNotFound
	}
	return backup, nil
}

func (f *fakeBackupStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Backup, error) {
	var out []*domain.Backup
	for _, b := range f.rows {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBackupStore) ListExpired(ctx context.Context, before time.Time) ([]*domain.Backup, error) {
	var out []*domain.Backup
	for _, b := range f.rows {
		if b.ExpiresAt.Before(before) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBackupStore) ListActive(ctx context.Context, now time.Time) ([]*domain.Backup, error) {
	var out []*domain.Backup
	for _, b := range f.rows {
		if b.ExpiresAt.After(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBackupStore) Delete(ctx context.Context, backupID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, backupID)
	return nil
}

func (f *fakeBackupStore) WithTx(tx *sql.Tx) store.BackupStore { return f }

func makeConversation(t *testing.T, title string) *domain.Conversation {
	t.Helper()

	conv, err := domain.NewConversation(uuid.New(), title, "standard", []domain.Turn{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	require.NoError(t, err)
	return conv
}

func newTestService(t *testing.T, convs *fakeConversationStore, backups *fakeBackupStore) (*Service, *LocalFileStore) {
	t.Helper()

	files, err := NewLocalFileStore(t.TempDir())
	require.NoError(t, err)

	return NewService(convs, backups, files, 7, nil), files
}

func TestCreateBackup_WritesArtifactAndMetadata(t *testing.T) {
	conv := makeConversation(t, "keep me")
	convs := newFakeConversationStore(conv)
	backups := newFakeBackupStore()
	svc, files := newTestService(t, convs, backups)

	backup, err := svc.CreateBackup(context.Background(), []uuid.UUID{conv.ID}, conv.UserID, "pre-delete")
	require.NoError(t, err)

	assert.NotEmpty(t, backup.BackupID)
	assert.Equal(t, conv.UserID, backup.UserID)
	assert.Equal(t, "pre-delete", backup.BackupReason)
	assert.Equal(t, files.Path(backup.BackupID), backup.FilePath)
	assert.Equal(t, backup.CreatedAt.Add(7*24*time.Hour), backup.ExpiresAt)

	data, err := files.Read(backup.BackupID)
	require.NoError(t, err)

	var artifact Artifact
	require.NoError(t, json.Unmarshal(data, &artifact))
	assert.Equal(t, ArtifactVersion, artifact.Version)
	assert.Equal(t, "pre-delete", artifact.BackupReason)
	require.Len(t, artifact.Records, 1)
	assert.Equal(t, "keep me", artifact.Records[0].Title)

	stored, err := backups.GetByBackupID(context.Background(), backup.BackupID)
	require.NoError(t, err)
	assert.Equal(t, backup.FilePath, stored.FilePath)
}

func TestCreateBackup_FetchFailureWritesNothing(t *testing.T) {
	conv := makeConversation(t, "present")
	convs := newFakeConversationStore(conv)
	backups := newFakeBackupStore()
	svc, files := newTestService(t, convs, backups)

	// One of the two requested conversations does not exist.
	_, err := svc.CreateBackup(context.Background(), []uuid.UUID{conv.ID, uuid.New()}, conv.UserID, "pre-delete")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConversationNotFound)

	assert.Empty(t, backups.rows, "no metadata may be written on fetch failure")

	entries, err := os.ReadDir(filepath.Dir(files.Path("any")))
	require.NoError(t, err)
	assert.Empty(t, entries, "no artifact may be written on fetch failure")
}

func TestCreateBackup_MetadataFailureRemovesArtifact(t *testing.T) {
	conv := makeConversation(t, "x")
	convs := newFakeConversationStore(conv)
	backups := newFakeBackupStore()
	backups.createErr = errors.New("connection refused")
	svc, files := newTestService(t, convs, backups)

	_, err := svc.CreateBackup(context.Background(), []uuid.UUID{conv.ID}, conv.UserID, "pre-delete")
	require.Error(t, err)

	entries, readErr := os.ReadDir(filepath.Dir(files.Path("any")))
	require.NoError(t, readErr)
	assert.Empty(t, entries, "orphaned artifact must be removed")
}

func TestCreateBackup_InvalidInputs(t *testing.T) {
	svc, _ := newTestService(t, newFakeConversationStore(), newFakeBackupStore())

	t.Run("no_records", func(t *testing.T) {
		_, err := svc.CreateBackup(context.Background(), nil, uuid.New(), "r")
		assert.ErrorIs(t, err, ErrNoRecords)
	})

	t.Run("nil_user", func(t *testing.T) {
		_, err := svc.CreateBackup(context.Background(), []uuid.UUID{uuid.New()}, uuid.Nil, "r")
		assert.ErrorIs(t, err, ErrEmptyUserID)
	})
}

func TestCleanupExpiredBackups(t *testing.T) {
	conv := makeConversation(t, "a")
	convs := newFakeConversationStore(conv)
	backups := newFakeBackupStore()
	svc, files := newTestService(t, convs, backups)

	now := time.Now().UTC()
	expired1 := &domain.Backup{
		ID: uuid.New(), BackupID: "backup-old-1", UserID: conv.UserID,
		FilePath:        files.Path("backup-old-1"),
		ConversationIDs: []uuid.UUID{conv.ID},
		ExpiresAt:       now.Add(-time.Hour), CreatedAt: now.Add(-8 * 24 * time.Hour),
	}
	expired2 := &domain.Backup{
		ID: uuid.New(), BackupID: "backup-old-2", UserID: conv.UserID,
		FilePath:        files.Path("backup-old-2"),
		ConversationIDs: []uuid.UUID{conv.ID},
		ExpiresAt:       now.Add(-time.Minute), CreatedAt: now.Add(-8 * 24 * time.Hour),
	}
	active := &domain.Backup{
		ID: uuid.New(), BackupID: "backup-live", UserID: conv.UserID,
		FilePath:        files.Path("backup-live"),
		ConversationIDs: []uuid.UUID{conv.ID},
		ExpiresAt:       now.Add(time.Hour), CreatedAt: now,
	}

	for _, b := range []*domain.Backup{expired1, expired2, active} {
		require.NoError(t, backups.Create(context.Background(), b))
	}

	// Only one of the two expired backups still has its file on disk.
	_, err := files.Write("backup-old-1", []byte("{}"))
	require.NoError(t, err)
	_, err = files.Write("backup-live", []byte("{}"))
	require.NoError(t, err)

	deleted, err := svc.CleanupExpiredBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted, "a missing file must not block cleanup")

	_, err = backups.GetByBackupID(context.Background(), "backup-old-1")
	assert.ErrorIs(t, err, store.ErrBackupNotFound)
	_, err = backups.GetByBackupID(context.Background(), "backup-old-2")
	assert.ErrorIs(t, err, store.ErrBackupNotFound)

	_, err = backups.GetByBackupID(context.Background(), "backup-live")
	assert.NoError(t, err, "active backups are untouched")
	_, err = files.Read("backup-live")
	assert.NoError(t, err)
}

func TestDeleteConversationsWithBackup(t *testing.T) {
	conv := makeConversation(t, "doomed")
	convs := newFakeConversationStore(conv)
	backups := newFakeBackupStore()
	svc, _ := newTestService(t, convs, backups)

	backup, err := svc.DeleteConversationsWithBackup(context.Background(), []uuid.UUID{conv.ID}, conv.UserID, "user delete")
	require.NoError(t, err)
	require.NotNil(t, backup)

	require.Len(t, convs.deleted, 1)
	assert.Equal(t, []uuid.UUID{conv.ID}, convs.deleted[0])

	_, err = backups.GetByBackupID(context.Background(), backup.BackupID)
	assert.NoError(t, err, "the backup receipt survives the delete")
}

func TestDeleteConversationsWithBackup_BackupFailureBlocksDelete(t *testing.T) {
	conv := makeConversation(t, "safe")
	convs := newFakeConversationStore(conv)
	convs.getErr = errors.New("connection refused")
	backups := newFakeBackupStore()
	svc, _ := newTestService(t, convs, backups)

	_, err := svc.DeleteConversationsWithBackup(context.Background(), []uuid.UUID{conv.ID}, conv.UserID, "user delete")
	require.Error(t, err)
	assert.Empty(t, convs.deleted, "no delete may run without a durable backup")
}

func TestLocalFileStore_RemoveMissingIsNoError(t *testing.T) {
	files, err := NewLocalFileStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, files.Remove("never-written"))
}

func TestNewLocalFileStore_EmptyDir(t *testing.T) {
	_, err := NewLocalFileStore("")
	assert.Error(t, err)
}
