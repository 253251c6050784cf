package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/tributary-api/internal/api/shared"
	"github.com/phrazzld/tributary-api/internal/backup"
	"github.com/phrazzld/tributary-api/internal/batch"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/generation"
	"github.com/phrazzld/tributary-api/internal/recovery"
	"github.com/phrazzld/tributary-api/internal/service"
	"github.com/phrazzld/tributary-api/internal/store"
)

// In-memory fakes backing the handler tests. Each fake implements the store
// interface the handlers' services depend on; WithTx returns the receiver so
// transactional code paths run against the same in-memory state.

type fakeTxRunner struct{}

func (f *fakeTxRunner) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

type fakeJobStore struct {
	jobs  map[uuid.UUID]*domain.BatchJob
	items map[uuid.UUID][]*domain.BatchItem
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		jobs:  make(map[uuid.UUID]*domain.BatchJob),
		items: make(map[uuid.UUID][]*domain.BatchItem),
	}
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *domain.BatchJob, items []*domain.BatchItem) error {
	f.jobs[job.ID] = job
	f.items[job.ID] = items
	return nil
}

func (f *fakeJobStore) GetJobByID(_ context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status domain.JobStatus) error {
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	if job.IsTerminal() {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	return nil
}

func (f *fakeJobStore) ClaimNextItem(_ context.Context, jobID uuid.UUID) (*domain.BatchItem, error) {
	for _, item := range f.items[jobID] {
		if item.Status == domain.ItemStatusQueued {
			item.Status = domain.ItemStatusProcessing
			return item, nil
		}
	}
	return nil, store.ErrNoQueuedItems
}

func (f *fakeJobStore) CompleteItem(
	_ context.Context,
	itemID uuid.UUID,
	status domain.ItemStatus,
	conversationID *uuid.UUID,
	errorMessage string,
) error {
	for jobID, items := range f.items {
		for _, item := range items {
			if item.ID != itemID {
				continue
			}
			item.Status = status
			item.ConversationID = conversationID
			item.ErrorMessage = errorMessage
			job := f.jobs[jobID]
			job.CompletedItems++
			if status == domain.ItemStatusCompleted {
				job.SuccessfulItems++
			} else {
				job.FailedItems++
			}
			return nil
		}
	}
	return store.ErrItemNotFound
}

func (f *fakeJobStore) CountQueuedItems(_ context.Context, jobID uuid.UUID) (int, error) {
	count := 0
	for _, item := range f.items[jobID] {
		if item.Status == domain.ItemStatusQueued {
			count++
		}
	}
	return count, nil
}

func (f *fakeJobStore) GetItemsByJobID(_ context.Context, jobID uuid.UUID) ([]*domain.BatchItem, error) {
	return f.items[jobID], nil
}

func (f *fakeJobStore) MarkItemProcessing(_ context.Context, itemID uuid.UUID) error {
	for _, items := range f.items {
		for _, item := range items {
			if item.ID != itemID {
				continue
			}
			if item.Status != domain.ItemStatusQueued && item.Status != domain.ItemStatusProcessing {
				return store.ErrItemNotFound
			}
			item.Status = domain.ItemStatusProcessing
			return nil
		}
	}
	return store.ErrItemNotFound
}

func (f *fakeJobStore) RequeueFailedItems(_ context.Context, jobID uuid.UUID) (int, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return 0, store.ErrJobNotFound
	}
	requeued := 0
	for _, item := range f.items[jobID] {
		if item.Status == domain.ItemStatusFailed {
			item.Status = domain.ItemStatusQueued
			item.ErrorMessage = ""
			requeued++
		}
	}
	job.CompletedItems -= requeued
	job.FailedItems -= requeued
	return requeued, nil
}

func (f *fakeJobStore) WithTx(_ *sql.Tx) store.JobStore { return f }

type fakeJobLogStore struct {
	logs map[uuid.UUID][]string
}

func newFakeJobLogStore() *fakeJobLogStore {
	return &fakeJobLogStore{logs: make(map[uuid.UUID][]string)}
}

func (f *fakeJobLogStore) AppendLog(_ context.Context, jobID uuid.UUID, message string) error {
	f.logs[jobID] = append(f.logs[jobID], message)
	return nil
}

func (f *fakeJobLogStore) GetLogs(_ context.Context, jobID uuid.UUID) ([]string, error) {
	return f.logs[jobID], nil
}

type fakeTemplateStore struct {
	templates map[uuid.UUID]*domain.PromptTemplate
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{templates: make(map[uuid.UUID]*domain.PromptTemplate)}
}

func (f *fakeTemplateStore) GetByID(_ context.Context, id uuid.UUID) (*domain.PromptTemplate, error) {
	tmpl, ok := f.templates[id]
	if !ok {
		return nil, store.ErrTemplateNotFound
	}
	return tmpl, nil
}

func (f *fakeTemplateStore) FindByArc(_ context.Context, arcKey, tier string) (*domain.PromptTemplate, error) {
	for _, tmpl := range f.templates {
		if tmpl.ArcKey == arcKey && (tier == "" || tmpl.Tier == tier) {
			return tmpl, nil
		}
	}
	return nil, store.ErrTemplateNotFound
}

func (f *fakeTemplateStore) WithTx(_ *sql.Tx) store.TemplateStore { return f }

type fakeConversationStore struct {
	conversations map[uuid.UUID]*domain.Conversation
	deleted       []uuid.UUID
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: make(map[uuid.UUID]*domain.Conversation)}
}

func (f *fakeConversationStore) Create(_ context.Context, conv *domain.Conversation) error {
	f.conversations[conv.ID] = conv
	return nil
}

func (f *fakeConversationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeConversationStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*domain.Conversation, error) {
	result := make([]*domain.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, ok := f.conversations[id]
		if !ok {
			return nil, store.ErrConversationNotFound
		}
		result = append(result, conv)
	}
	return result, nil
}

func (f *fakeConversationStore) Delete(_ context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(f.conversations, id)
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeConversationStore) WithTx(_ *sql.Tx) store.ConversationStore { return f }

type fakeGenerator struct {
	err   error
	calls int
}

func (f *fakeGenerator) GenerateConversation(_ context.Context, req generation.Request) (*domain.Conversation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewConversation(req.UserID, req.Topic, req.Tier, []domain.Turn{
		{Role: "human", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
}

type fakeDraftStore struct {
	drafts []*domain.Draft
}

func (f *fakeDraftStore) ListDrafts(_ context.Context) ([]*domain.Draft, error) {
	return f.drafts, nil
}

func (f *fakeDraftStore) DeleteDraft(_ context.Context, id uuid.UUID) error {
	for i, d := range f.drafts {
		if d.ID == id {
			f.drafts = append(f.drafts[:i], f.drafts[i+1:]...)
			return nil
		}
	}
	return store.ErrDraftNotFound
}

func (f *fakeDraftStore) WithTx(_ *sql.Tx) store.DraftStore { return f }

type fakeCheckpointStore struct {
	checkpoints map[uuid.UUID]*domain.BatchCheckpoint
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{checkpoints: make(map[uuid.UUID]*domain.BatchCheckpoint)}
}

func (f *fakeCheckpointStore) Save(
	_ context.Context,
	jobID uuid.UUID,
	completedIDs []string,
	failedItems []domain.FailedItem,
	totalItems int,
) error {
	f.checkpoints[jobID] = &domain.BatchCheckpoint{
		JobID:              jobID,
		CompletedItems:     completedIDs,
		FailedItems:        failedItems,
		ProgressPercentage: domain.CheckpointProgress(len(completedIDs), len(failedItems), totalItems),
		LastCheckpointAt:   time.Now().UTC(),
	}
	return nil
}

func (f *fakeCheckpointStore) Load(_ context.Context, jobID uuid.UUID) (*domain.BatchCheckpoint, error) {
	cp, ok := f.checkpoints[jobID]
	if !ok {
		return nil, store.ErrCheckpointNotFound
	}
	return cp, nil
}

func (f *fakeCheckpointStore) Cleanup(_ context.Context, jobID uuid.UUID) error {
	delete(f.checkpoints, jobID)
	return nil
}

func (f *fakeCheckpointStore) ListIncomplete(_ context.Context) ([]*domain.BatchCheckpoint, error) {
	result := make([]*domain.BatchCheckpoint, 0, len(f.checkpoints))
	for _, cp := range f.checkpoints {
		if cp.ProgressPercentage < 100 {
			result = append(result, cp)
		}
	}
	return result, nil
}

func (f *fakeCheckpointStore) WithTx(_ *sql.Tx) store.CheckpointStore { return f }

type fakeBackupStore struct {
	backups map[string]*domain.Backup
}

func newFakeBackupStore() *fakeBackupStore {
	return &fakeBackupStore{backups: make(map[string]*domain.Backup)}
}

func (f *fakeBackupStore) Create(_ context.Context, b *domain.Backup) error {
	f.backups[b.BackupID] = b
	return nil
}

func (f *fakeBackupStore) GetByBackupID(_ context.Context, backupID string) (*domain.Backup, error) {
	b, ok := f.backups[backupID]
	if !ok {
		return nil, store.ErrBackupNotFound
	}
	return b, nil
}

func (f *fakeBackupStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Backup, error) {
	result := []*domain.Backup{}
	for _, b := range f.backups {
		if b.UserID == userID {
			result = append(result, b)
		}
	}
	return result, nil
}

func (f *fakeBackupStore) ListExpired(_ context.Context, before time.Time) ([]*domain.Backup, error) {
	result := []*domain.Backup{}
	for _, b := range f.backups {
		if b.ExpiresAt.Before(before) {
			result = append(result, b)
		}
	}
	return result, nil
}

func (f *fakeBackupStore) ListActive(_ context.Context, now time.Time) ([]*domain.Backup, error) {
	result := []*domain.Backup{}
	for _, b := range f.backups {
		if !b.IsExpired(now) {
			result = append(result, b)
		}
	}
	return result, nil
}

func (f *fakeBackupStore) Delete(_ context.Context, backupID string) error {
	delete(f.backups, backupID)
	return nil
}

func (f *fakeBackupStore) WithTx(_ *sql.Tx) store.BackupStore { return f }

type fakeExportLogStore struct {
	failed []*domain.ExportRecord
}

func (f *fakeExportLogStore) ListFailed(_ context.Context, limit int) ([]*domain.ExportRecord, error) {
	if len(f.failed) > limit {
		return f.failed[:limit], nil
	}
	return f.failed, nil
}

func (f *fakeExportLogStore) WithTx(_ *sql.Tx) store.ExportLogStore { return f }

type fakeFileStore struct {
	files map[string][]byte
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[string][]byte)}
}

func (f *fakeFileStore) Write(backupID string, data []byte) (string, error) {
	f.files[backupID] = data
	return "/backups/" + backupID + ".json", nil
}

func (f *fakeFileStore) Read(backupID string) ([]byte, error) {
	data, ok := f.files[backupID]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	return data, nil
}

func (f *fakeFileStore) Remove(backupID string) error {
	delete(f.files, backupID)
	return nil
}

// apiFixture wires the full handler surface over in-memory fakes, with an
// auth stub that injects a fixed user ID the way the middleware would.
type apiFixture struct {
	router        chi.Router
	userID        uuid.UUID
	jobs          *fakeJobStore
	jobLogs       *fakeJobLogStore
	templates     *fakeTemplateStore
	conversations *fakeConversationStore
	generator     *fakeGenerator
	drafts        *fakeDraftStore
	checkpoints   *fakeCheckpointStore
	backups       *fakeBackupStore
	exports       *fakeExportLogStore
	files         *fakeFileStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		userID:        uuid.New(),
		jobs:          newFakeJobStore(),
		jobLogs:       newFakeJobLogStore(),
		templates:     newFakeTemplateStore(),
		conversations: newFakeConversationStore(),
		generator:     &fakeGenerator{},
		drafts:        &fakeDraftStore{},
		checkpoints:   newFakeCheckpointStore(),
		backups:       newFakeBackupStore(),
		exports:       &fakeExportLogStore{},
		files:         newFakeFileStore(),
	}

	processor := batch.NewProcessor(f.checkpoints, nil)
	jobService := service.NewJobExecutionService(
		&fakeTxRunner{}, f.jobs, f.jobLogs, f.templates, f.conversations, f.generator, processor, nil)
	backupService := backup.NewService(f.conversations, f.backups, f.files, 7, nil)
	detector := recovery.NewDetector(f.drafts, f.checkpoints, f.backups, f.exports, nil)
	executor := recovery.NewExecutor(f.drafts, f.checkpoints, nil)

	jobHandler := NewBatchJobHandler(jobService)
	recoveryHandler := NewRecoveryHandler(detector, executor)
	backupHandler := NewBackupHandler(backupService)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), shared.UserIDContextKey, f.userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Route("/batch-jobs", func(r chi.Router) {
			r.Post("/", jobHandler.CreateJob)
			r.Get("/{id}", jobHandler.GetJob)
			r.Post("/{id}/cancel", jobHandler.CancelJob)
			r.Post("/{id}/process-next", jobHandler.ProcessNextItem)
			r.Post("/{id}/resume", jobHandler.ResumeJob)
		})
		r.Route("/recovery", func(r chi.Router) {
			r.Get("/items", recoveryHandler.DetectRecoverableData)
			r.Post("/recover", recoveryHandler.RecoverItems)
		})
		r.Route("/backups", func(r chi.Router) {
			r.Post("/", backupHandler.CreateBackup)
			r.Get("/", backupHandler.ListBackups)
			r.Get("/{backupId}", backupHandler.GetBackup)
			r.Post("/cleanup", backupHandler.CleanupExpiredBackups)
		})
	})
	f.router = r

	return f
}

// seedTemplate stores a prompt template and returns it.
func (f *apiFixture) seedTemplate(arcKey, tier string) *domain.PromptTemplate {
	tmpl := &domain.PromptTemplate{
		ID:        uuid.New(),
		Name:      arcKey + " template",
		ArcKey:    arcKey,
		Tier:      tier,
		Body:      "Generate a conversation about {{topic}}.",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.templates.templates[tmpl.ID] = tmpl
	return tmpl
}

// do executes a request against the fixture's router, JSON-encoding body
// when it is non-nil.
func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// decodeBody unmarshals a recorded JSON response into target.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
}
