package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Backup
var (
	ErrEmptyBackupID       = errors.New("backup ID cannot be empty")
	ErrEmptyBackupUserID   = errors.New("backup user ID cannot be empty")
	ErrEmptyBackupFilePath = errors.New("backup file path cannot be empty")
	ErrEmptyBackupRecords  = errors.New("backup must reference at least one record")
)

// Backup is the metadata row written before a destructive delete. A delete
// referencing conversation IDs may proceed only after a Backup covering
// those IDs has been durably written.
type Backup struct {
	ID              uuid.UUID   `json:"id"`
	BackupID        string      `json:"backup_id"`
	UserID          uuid.UUID   `json:"user_id"`
	FilePath        string      `json:"file_path"`
	ConversationIDs []uuid.UUID `json:"conversation_ids"`
	BackupReason    string      `json:"backup_reason"`
	ExpiresAt       time.Time   `json:"expires_at"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Validate checks if the Backup has valid data.
func (b *Backup) Validate() error {
	if b.ID == uuid.Nil || b.BackupID == "" {
		return ErrEmptyBackupID
	}

	if b.UserID == uuid.Nil {
		return ErrEmptyBackupUserID
	}

	if b.FilePath == "" {
		return ErrEmptyBackupFilePath
	}

	if len(b.ConversationIDs) == 0 {
		return ErrEmptyBackupRecords
	}

	if !b.ExpiresAt.After(b.CreatedAt) {
		return ErrInvalidExpiry
	}

	return nil
}

// IsExpired reports whether the backup's retention window has passed.
func (b *Backup) IsExpired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}
