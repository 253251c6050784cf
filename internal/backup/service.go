// Package backup implements the pre-destructive-operation backup service.
// A delete referencing conversation IDs may proceed only after a backup
// covering those IDs has been durably written to both file storage and the
// metadata table.
package backup

import (
	"context"
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

// ArtifactVersion is the schema version stamped into every backup file.
const ArtifactVersion = "1.0"

// Service errors
var (
	ErrNoRecords   = errors.New("backup must cover at least one conversation")
	ErrEmptyUserID = errors.New("backup user ID cannot be empty")
)

// Artifact is the JSON document written to file storage.
type Artifact struct {
	Version      string                 `json:"version"`
	CreatedAt    time.Time              `json:"createdAt"`
	BackupReason string                 `json:"backupReason"`
	Records      []*domain.Conversation `json:"records"`
}

// Service creates, retrieves, and expires conversation backups.
type Service struct {
	conversations store.ConversationStore
	backups       store.BackupStore
	files         FileStore
	retention     time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewService creates a backup Service. retentionDays bounds how long a
// backup stays restorable before the cleanup sweep removes it.
func NewService(
	conversations store.ConversationStore,
	backups store.BackupStore,
	files FileStore,
	retentionDays int,
	logger *slog.Logger,
) *Service {
	if conversations == nil || backups == nil || files == nil {
		panic("backup service dependencies cannot be nil")
	}

	if retentionDays <= 0 {
		retentionDays = 7
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		conversations: conversations,
		backups:       backups,
		files:         files,
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		logger:        logger.With(slog.String("component", "backup_service")),
		now:           time.Now,
	}
}

// CreateBackup snapshots the given conversations to file storage and records
// the backup metadata. Any fetch failure aborts before a single byte is
// written, so a partial snapshot can never gate a delete.
func (s *Service) CreateBackup(
	ctx context.Context,
	ids []uuid.UUID,
	userID uuid.UUID,
	reason string,
) (*domain.Backup, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(ids) == 0 {
		return nil, ErrNoRecords
	}

	if userID == uuid.Nil {
		return nil, ErrEmptyUserID
	}

	records, err := s.conversations.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations for backup: %w", err)
	}

	createdAt := s.now().UTC()
	backupID := fmt.Sprintf("backup-%d-%s", createdAt.UnixMilli(), uuid.New().String()[:8])

	data, err := json.MarshalIndent(Artifact{
		Version:      ArtifactVersion,
		CreatedAt:    createdAt,
		BackupReason: reason,
		Records:      records,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize backup artifact: %w", err)
	}

	filePath, err := s.files.Write(backupID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to write backup artifact: %w", err)
	}

	backup := &domain.Backup{
		ID:              uuid.New(),
		BackupID:        backupID,
		UserID:          userID,
		FilePath:        filePath,
		ConversationIDs: ids,
		BackupReason:    reason,
		ExpiresAt:       createdAt.Add(s.retention),
		CreatedAt:       createdAt,
	}

	if err := s.backups.Create(ctx, backup); err != nil {
		// The artifact without its metadata row is unreachable; remove it
		// rather than leaking files the sweep will never find.
		if rmErr := s.files.Remove(backupID); rmErr != nil {
			log.Warn("failed to remove orphaned backup artifact",
				slog.String("backup_id", backupID),
				slog.String("error", rmErr.Error()))
		}
		return nil, fmt.Errorf("failed to record backup metadata: %w", err)
	}

	log.Info("backup created",
		slog.String("backup_id", backupID),
		slog.Int("records", len(records)),
		slog.String("reason", reason))

	return backup, nil
}

// GetBackup retrieves backup metadata by its external identifier. It does
// not verify that the artifact file still exists.
func (s *Service) GetBackup(ctx context.Context, backupID string) (*domain.Backup, error) {
	return s.backups.GetByBackupID(ctx, backupID)
}

// ListUserBackups retrieves a user's non-expired backups, newest first.
func (s *Service) ListUserBackups(ctx context.Context, userID uuid.UUID) ([]*domain.Backup, error) {
	return s.backups.ListByUser(ctx, userID)
}

// CleanupExpiredBackups deletes every backup past its expiry: the artifact
// file best-effort (a file already missing on disk is fine), then the
// metadata row. Returns the number of backups removed.
func (s *Service) CleanupExpiredBackups(ctx context.Context) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	expired, err := s.backups.ListExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired backups: %w", err)
	}

	deleted := 0
	for _, backup := range expired {
		if err := s.files.Remove(backup.BackupID); err != nil {
			log.Warn("failed to remove expired backup artifact",
				slog.String("backup_id", backup.BackupID),
				slog.String("error", err.Error()))
		}

		if err := s.backups.Delete(ctx, backup.BackupID); err != nil {
			return deleted, fmt.Errorf("failed to delete backup metadata: %w", err)
		}

		deleted++
	}

	if deleted > 0 {
		log.Info("expired backups removed", slog.Int("count", deleted))
	}

	return deleted, nil
}

// DeleteConversationsWithBackup backs the conversations up and only then
// deletes them. The returned backup is the caller's receipt for the delete.
func (s *Service) DeleteConversationsWithBackup(
	ctx context.Context,
	ids []uuid.UUID,
	userID uuid.UUID,
	reason string,
) (*domain.Backup, error) {
	backup, err := s.CreateBackup(ctx, ids, userID, reason)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.Delete(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete conversations after backup %s: %w", backup.BackupID, err)
	}

	return backup, nil
}
