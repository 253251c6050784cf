package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExportStatus represents the outcome of an export run.
type ExportStatus string

// Possible export status values
const (
	ExportStatusPending   ExportStatus = "pending"
	ExportStatusCompleted ExportStatus = "completed"
	ExportStatusFailed    ExportStatus = "failed"
)

// ErrEmptyExportID is returned when an export record has no identifier.
var ErrEmptyExportID = errors.New("export ID cannot be empty")

// ExportRecord tracks one export attempt. The export transformers themselves
// are external; this subsystem only reads failed records during recovery
// scanning so the operator can retry them.
type ExportRecord struct {
	ID              uuid.UUID    `json:"id"`
	UserID          uuid.UUID    `json:"user_id"`
	Format          string       `json:"format"`
	ConversationIDs []uuid.UUID  `json:"conversation_ids"`
	Status          ExportStatus `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Validate checks if the ExportRecord has valid data.
func (e *ExportRecord) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyExportID
	}

	if !isValidExportStatus(e.Status) {
		return ErrInvalidExportStatus
	}

	return nil
}

// isValidExportStatus checks if the given status is a valid ExportStatus.
func isValidExportStatus(status ExportStatus) bool {
	switch status {
	case ExportStatusPending, ExportStatusCompleted, ExportStatusFailed:
		return true
	default:
		return false
	}
}
