package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/api/shared"
	"github.com/phrazzld/tributary-api/internal/backup"
	"github.com/phrazzld/tributary-api/internal/domain"
)

// BackupHandler handles backup HTTP requests.
type BackupHandler struct {
	backupService *backup.Service
	validator     *validator.Validate
}

// NewBackupHandler creates a new BackupHandler.
func NewBackupHandler(backupService *backup.Service) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
		validator:     validator.New(),
	}
}

// CreateBackup handles POST /api/backups requests.
func (h *BackupHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateBackupRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.ConversationIDs))
	for _, raw := range req.ConversationIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondWithServiceError(w, r,
				domain.NewValidationError("conversation_ids", "has invalid format", domain.ErrInvalidID))
			return
		}
		ids = append(ids, id)
	}

	created, err := h.backupService.CreateBackup(r.Context(), ids, userID, req.Reason)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, backupToResponse(created))
}

// GetBackup handles GET /api/backups/{backupId} requests. Only the owner
// may read a backup's metadata.
func (h *BackupHandler) GetBackup(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	backupID := chi.URLParam(r, "backupId")
	if backupID == "" {
		respondWithServiceError(w, r,
			domain.NewValidationError("backupId", "is required", domain.ErrValidation))
		return
	}

	found, err := h.backupService.GetBackup(r.Context(), backupID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	if found.UserID != userID {
		shared.RespondWithError(w, r, http.StatusForbidden, "You do not own this backup")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, backupToResponse(found))
}

// ListBackups handles GET /api/backups requests, returning the caller's
// non-expired backups.
func (h *BackupHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	backups, err := h.backupService.ListUserBackups(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	responses := make([]BackupResponse, 0, len(backups))
	for _, b := range backups {
		responses = append(responses, backupToResponse(b))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// CleanupExpiredBackups handles POST /api/backups/cleanup requests, running
// the retention sweep.
func (h *BackupHandler) CleanupExpiredBackups(w http.ResponseWriter, r *http.Request) {
	if _, ok := getUserIDFromContext(r); !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	deleted, err := h.backupService.CleanupExpiredBackups(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{DeletedCount: deleted})
}
