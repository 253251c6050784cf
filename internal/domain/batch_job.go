package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a batch job.
type JobStatus string

// Possible job status values
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// ItemStatus represents the lifecycle state of a single batch item.
// An item never returns to queued once claimed.
type ItemStatus string

// Possible item status values
const (
	ItemStatusQueued     ItemStatus = "queued"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// Common validation errors for BatchJob and BatchItem
var (
	ErrEmptyJobID         = errors.New("batch job ID cannot be empty")
	ErrEmptyJobUserID     = errors.New("batch job user ID cannot be empty")
	ErrJobWithoutItems    = errors.New("batch job must contain at least one item")
	ErrEmptyItemID        = errors.New("batch item ID cannot be empty")
	ErrEmptyItemJobID     = errors.New("batch item job ID cannot be empty")
	ErrNegativeItemCounts = errors.New("batch job item counts cannot be negative")
	ErrInconsistentCounts = errors.New("completed items must equal successful plus failed items")
)

// BatchJob drives the poll loop: a client repeatedly asks the server to
// process the next queued item until the job reaches a terminal status.
type BatchJob struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Status          JobStatus  `json:"status"`
	TotalItems      int        `json:"total_items"`
	CompletedItems  int        `json:"completed_items"`
	SuccessfulItems int        `json:"successful_items"`
	FailedItems     int        `json:"failed_items"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// BatchItem is a unit of work inside a batch job. Parameters is an opaque
// bag handed to the generation service; Tier optionally narrows template
// selection.
type BatchItem struct {
	ID             uuid.UUID      `json:"id"`
	JobID          uuid.UUID      `json:"job_id"`
	Position       int            `json:"position"`
	Topic          string         `json:"topic"`
	Tier           string         `json:"tier,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	Status         ItemStatus     `json:"status"`
	ConversationID *uuid.UUID     `json:"conversation_id,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// JobProgress is a point-in-time summary of batch job progress, suitable
// for returning to a polling client.
type JobProgress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Percentage int `json:"percentage"`
}

// NewBatchJob creates a queued BatchJob for the given user and item count.
// Returns an error if validation fails.
func NewBatchJob(userID uuid.UUID, totalItems int) (*BatchJob, error) {
	now := time.Now().UTC()
	job := &BatchJob{
		ID:         uuid.New(),
		UserID:     userID,
		Status:     JobStatusQueued,
		TotalItems: totalItems,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the BatchJob has valid data and consistent counters.
func (j *BatchJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.UserID == uuid.Nil {
		return ErrEmptyJobUserID
	}

	if j.TotalItems < 1 {
		return ErrJobWithoutItems
	}

	if j.CompletedItems < 0 || j.SuccessfulItems < 0 || j.FailedItems < 0 {
		return ErrNegativeItemCounts
	}

	if j.CompletedItems != j.SuccessfulItems+j.FailedItems {
		return ErrInconsistentCounts
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return nil
}

// IsTerminal reports whether the job can accept no further processing.
// Cancelled counts as terminal for the poll loop.
func (j *BatchJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Progress computes the job's progress summary. Percentage is rounded to
// the nearest integer.
func (j *BatchJob) Progress() JobProgress {
	percentage := 0
	if j.TotalItems > 0 {
		percentage = int(math.Round(float64(j.CompletedItems) / float64(j.TotalItems) * 100))
	}

	return JobProgress{
		Total:      j.TotalItems,
		Completed:  j.CompletedItems,
		Successful: j.SuccessfulItems,
		Failed:     j.FailedItems,
		Percentage: percentage,
	}
}

// NewBatchItem creates a queued BatchItem for the given job.
// Returns an error if validation fails.
func NewBatchItem(jobID uuid.UUID, position int, topic, tier string, parameters map[string]any) (*BatchItem, error) {
	now := time.Now().UTC()
	item := &BatchItem{
		ID:         uuid.New(),
		JobID:      jobID,
		Position:   position,
		Topic:      topic,
		Tier:       tier,
		Parameters: parameters,
		Status:     ItemStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the BatchItem has valid data.
func (i *BatchItem) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyItemID
	}

	if i.JobID == uuid.Nil {
		return ErrEmptyItemJobID
	}

	if !isValidItemStatus(i.Status) {
		return ErrInvalidItemStatus
	}

	return nil
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusQueued, JobStatusProcessing, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidItemStatus checks if the given status is a valid ItemStatus.
func isValidItemStatus(status ItemStatus) bool {
	switch status {
	case ItemStatusQueued, ItemStatusProcessing, ItemStatusCompleted, ItemStatusFailed:
		return true
	default:
		return false
	}
}
