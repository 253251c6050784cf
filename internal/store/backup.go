package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
)

// BackupStore defines the interface for backup metadata persistence.
// Version: 1.0
type BackupStore interface {
	// Create saves a new backup metadata row.
	Create(ctx context.Context, backup *domain.Backup) error

	// GetByBackupID retrieves a backup by its external backup identifier.
	// Returns ErrBackupNotFound if the backup does not exist.
	GetByBackupID(ctx context.Context, backupID string) (*domain.Backup, error)

	// ListByUser retrieves a user's non-expired backups, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Backup, error)

	// ListExpired retrieves all backups whose expiry lies before the given time.
	ListExpired(ctx context.Context, before time.Time) ([]*domain.Backup, error)

	// ListActive retrieves all non-expired backups, newest first. Used by
	// the recovery detection pass.
	ListActive(ctx context.Context, now time.Time) ([]*domain.Backup, error)

	// Delete removes a backup metadata row by its external identifier.
	// Deleting a backup that does not exist is not an error.
	Delete(ctx context.Context, backupID string) error

	// WithTx returns a new BackupStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) BackupStore
}
