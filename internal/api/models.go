package api

import (
	"time"

	"github.com/phrazzld/tributary-api/internal/domain"
)

// CreateBatchJobRequest is the request body for submitting a batch job.
type CreateBatchJobRequest struct {
	Items []BatchItemRequest `json:"items" validate:"required,min=1,dive"`
}

// BatchItemRequest describes one item of a batch job submission.
type BatchItemRequest struct {
	Topic      string         `json:"topic"      validate:"required,min=1"`
	Tier       string         `json:"tier,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// BatchJobResponse is the representation of a batch job returned to clients.
type BatchJobResponse struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Progress    domain.JobProgress `json:"progress"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// BatchItemResponse is the representation of a batch item.
type BatchItemResponse struct {
	ID             string `json:"id"`
	Position       int    `json:"position"`
	Topic          string `json:"topic"`
	Tier           string `json:"tier,omitempty"`
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// BatchJobDetailResponse is a job with its items.
type BatchJobDetailResponse struct {
	BatchJobResponse
	Items []BatchItemResponse `json:"items"`
}

// ResumeJobRequest is the optional request body for resuming a batch job.
type ResumeJobRequest struct {
	RetryFailed bool `json:"retry_failed"`
}

// RecoverRequest selects detected items for recovery by their IDs.
type RecoverRequest struct {
	ItemIDs []string `json:"item_ids" validate:"required,min=1"`
}

// CreateBackupRequest is the request body for creating a backup.
type CreateBackupRequest struct {
	ConversationIDs []string `json:"conversation_ids" validate:"required,min=1,dive,uuid"`
	Reason          string   `json:"reason"           validate:"required,min=1"`
}

// BackupResponse is the representation of a backup returned to clients. The
// file path stays server-side.
type BackupResponse struct {
	BackupID        string    `json:"backup_id"`
	ConversationIDs []string  `json:"conversation_ids"`
	Reason          string    `json:"reason"`
	ExpiresAt       time.Time `json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// CleanupResponse reports the outcome of a retention sweep.
type CleanupResponse struct {
	DeletedCount int `json:"deleted_count"`
}

func jobToResponse(job *domain.BatchJob) BatchJobResponse {
	return BatchJobResponse{
		ID:          job.ID.String(),
		Status:      string(job.Status),
		Progress:    job.Progress(),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
}

func itemToResponse(item *domain.BatchItem) BatchItemResponse {
	resp := BatchItemResponse{
		ID:           item.ID.String(),
		Position:     item.Position,
		Topic:        item.Topic,
		Tier:         item.Tier,
		Status:       string(item.Status),
		ErrorMessage: item.ErrorMessage,
	}
	if item.ConversationID != nil {
		resp.ConversationID = item.ConversationID.String()
	}
	return resp
}

func backupToResponse(backup *domain.Backup) BackupResponse {
	ids := make([]string, 0, len(backup.ConversationIDs))
	for _, id := range backup.ConversationIDs {
		ids = append(ids, id.String())
	}

	return BackupResponse{
		BackupID:        backup.BackupID,
		ConversationIDs: ids,
		Reason:          backup.BackupReason,
		ExpiresAt:       backup.ExpiresAt,
		CreatedAt:       backup.CreatedAt,
	}
}
