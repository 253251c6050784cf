package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for BatchCheckpoint
var (
	ErrEmptyCheckpointJobID = errors.New("checkpoint job ID cannot be empty")
	ErrInvalidProgress      = errors.New("progress percentage must be between 0 and 100")
)

// FailedItem records a single item failure inside a checkpoint. The error
// string is kept verbatim so the UI can surface per-item failures.
type FailedItem struct {
	ItemID    string    `json:"itemId"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchCheckpoint is a durable snapshot of per-job batch progress. One row
// exists per job; it is upserted after every item attempt and deleted once
// the job reaches 100%.
type BatchCheckpoint struct {
	JobID              uuid.UUID    `json:"job_id"`
	CompletedItems     []string     `json:"completed_items"`
	FailedItems        []FailedItem `json:"failed_items"`
	ProgressPercentage int          `json:"progress_percentage"`
	LastCheckpointAt   time.Time    `json:"last_checkpoint_at"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Validate checks if the BatchCheckpoint has valid data.
func (c *BatchCheckpoint) Validate() error {
	if c.JobID == uuid.Nil {
		return ErrEmptyCheckpointJobID
	}

	if c.ProgressPercentage < 0 || c.ProgressPercentage > 100 {
		return ErrInvalidProgress
	}

	return nil
}

// IsComplete reports whether the checkpoint has recorded every item.
func (c *BatchCheckpoint) IsComplete() bool {
	return c.ProgressPercentage >= 100
}

// HasItem reports whether the given item is already recorded as completed
// or failed, meaning a resumed run must not process it again.
func (c *BatchCheckpoint) HasItem(itemID string) bool {
	for _, id := range c.CompletedItems {
		if id == itemID {
			return true
		}
	}

	for _, f := range c.FailedItems {
		if f.ItemID == itemID {
			return true
		}
	}

	return false
}

// CheckpointProgress computes the rounded progress percentage for the given
// completed/failed counts out of totalItems. A zero total yields zero.
func CheckpointProgress(completed, failed, totalItems int) int {
	if totalItems <= 0 {
		return 0
	}

	return int(math.Round(float64(completed+failed) / float64(totalItems) * 100))
}
