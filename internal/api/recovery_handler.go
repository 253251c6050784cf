package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/tributary-api/internal/api/shared"
	"github.com/phrazzld/tributary-api/internal/recovery"
)

// RecoveryHandler exposes the recovery pipeline: scan for recoverable work,
// then recover a caller-selected subset.
type RecoveryHandler struct {
	detector  *recovery.Detector
	executor  *recovery.Executor
	validator *validator.Validate
}

// NewRecoveryHandler creates a new RecoveryHandler.
func NewRecoveryHandler(detector *recovery.Detector, executor *recovery.Executor) *RecoveryHandler {
	return &RecoveryHandler{
		detector:  detector,
		executor:  executor,
		validator: validator.New(),
	}
}

// DetectRecoverableData handles GET /api/recovery/items requests. The
// response is the full prioritized list; detection never fails outright
// because each source scan is isolated.
func (h *RecoveryHandler) DetectRecoverableData(w http.ResponseWriter, r *http.Request) {
	if _, ok := getUserIDFromContext(r); !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	items := h.detector.Detect(r.Context())
	if items == nil {
		items = []*recovery.RecoverableItem{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, items)
}

// RecoverItems handles POST /api/recovery/recover requests: re-detect, mark
// everything the caller did not select as skipped, and run the executor.
// Detection state is never persisted, so selection is by item ID against a
// fresh scan.
func (h *RecoveryHandler) RecoverItems(w http.ResponseWriter, r *http.Request) {
	if _, ok := getUserIDFromContext(r); !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req RecoverRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	selected := make(map[string]bool, len(req.ItemIDs))
	for _, id := range req.ItemIDs {
		selected[id] = true
	}

	items := h.detector.Detect(r.Context())
	for _, item := range items {
		if !selected[item.ID] {
			item.Status = recovery.StatusSkipped
		}
	}

	summary := h.executor.RecoverItems(r.Context(), items, nil)

	shared.RespondWithJSON(w, r, http.StatusOK, summary)
}
