package postgres

import (
	"context"
	"database/sql"
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

// PostgresBackupStore implements the store.BackupStore interface using a
// PostgreSQL database.
type PostgresBackupStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresBackupStore creates a new PostgreSQL implementation of the
// BackupStore interface.
func NewPostgresBackupStore(db store.DBTX, logger *slog.Logger) *PostgresBackupStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresBackupStore{
		db:     db,
		logger: logger.With(slog.String("component", "backup_store")),
	}
}

// Ensure PostgresBackupStore implements store.BackupStore interface
var _ store.BackupStore = (*PostgresBackupStore)(nil)

// Create implements store.BackupStore.Create.
func (s *PostgresBackupStore) Create(ctx context.Context, backup *domain.Backup) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := backup.Validate(); err != nil {
		return fmt.Errorf("invalid backup: %w", err)
	}

	idsJSON, err := json.Marshal(backup.ConversationIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation IDs: %w", err)
	}

	query := `
		INSERT INTO backup_exports
			(id, backup_id, user_id, file_path, conversation_ids, backup_reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		backup.ID,
		backup.BackupID,
		backup.UserID,
		backup.FilePath,
		idsJSON,
		backup.BackupReason,
		backup.ExpiresAt,
		backup.CreatedAt,
	)
	if err != nil {
		mappedErr := MapError(err)
		log.Error("failed to create backup metadata",
			slog.String("error", err.Error()),
			slog.String("backup_id", backup.BackupID))
		if errors.Is(mappedErr, store.ErrDuplicate) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create backup metadata: %w", mappedErr)
	}

	return nil
}

// GetByBackupID implements store.BackupStore.GetByBackupID.
func (s *PostgresBackupStore) GetByBackupID(ctx context.Context, backupID string) (*domain.Backup, error) {
	query := `
		SELECT id, backup_id, user_id, file_path, conversation_ids, backup_reason, expires_at, created_at
		FROM backup_exports
		WHERE backup_id = $1
	`

	backup, err := scanBackup(s.db.QueryRowContext(ctx, query, backupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrBackupNotFound
		}
		return nil, fmt.Errorf("failed to get backup: %w", MapError(err))
	}

	return backup, nil
}

// ListByUser implements store.BackupStore.ListByUser.
func (s *PostgresBackupStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Backup, error) {
	query := `
		SELECT id, backup_id, user_id, file_path, conversation_ids, backup_reason, expires_at, created_at
		FROM backup_exports
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`

	return s.listBackups(ctx, query, userID, time.Now().UTC())
}

// ListExpired implements store.BackupStore.ListExpired.
func (s *PostgresBackupStore) ListExpired(ctx context.Context, before time.Time) ([]*domain.Backup, error) {
	query := `
		SELECT id, backup_id, user_id, file_path, conversation_ids, backup_reason, expires_at, created_at
		FROM backup_exports
		WHERE expires_at < $1
		ORDER BY expires_at
	`

	return s.listBackups(ctx, query, before)
}

// ListActive implements store.BackupStore.ListActive.
func (s *PostgresBackupStore) ListActive(ctx context.Context, now time.Time) ([]*domain.Backup, error) {
	query := `
		SELECT id, backup_id, user_id, file_path, conversation_ids, backup_reason, expires_at, created_at
		FROM backup_exports
		WHERE expires_at > $1
		ORDER BY created_at DESC
	`

	return s.listBackups(ctx, query, now)
}

// Delete implements store.BackupStore.Delete. Deleting a row that does not
// exist is not an error, so the retention sweep can be re-run safely.
func (s *PostgresBackupStore) Delete(ctx context.Context, backupID string) error {
	query := `DELETE FROM backup_exports WHERE backup_id = $1`

	_, err := s.db.ExecContext(ctx, query, backupID)
	if err != nil {
		return fmt.Errorf("failed to delete backup metadata: %w", MapError(err))
	}

	return nil
}

// WithTx implements store.BackupStore.WithTx.
func (s *PostgresBackupStore) WithTx(tx *sql.Tx) store.BackupStore {
	return &PostgresBackupStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresBackupStore) listBackups(ctx context.Context, query string, args ...any) ([]*domain.Backup, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query backups", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query backups: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var backups []*domain.Backup
	for rows.Next() {
		backup, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backup row: %w", err)
		}
		backups = append(backups, backup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backup rows: %w", err)
	}

	return backups, nil
}

func scanBackup(row rowScanner) (*domain.Backup, error) {
	var backup domain.Backup
	var idsJSON []byte

	err := row.Scan(
		&backup.ID,
		&backup.BackupID,
		&backup.UserID,
		&backup.FilePath,
		&idsJSON,
		&backup.BackupReason,
		&backup.ExpiresAt,
		&backup.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(idsJSON, &backup.ConversationIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation IDs: %w", err)
	}

	return &backup, nil
}
