package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/tributary-api/internal/api/shared"
	"github.com/phrazzld/tributary-api/internal/service"
)

// BatchJobHandler handles batch job HTTP requests: submission, status,
// cancellation, and the poll-driven "process next item" endpoint.
type BatchJobHandler struct {
	jobService *service.JobExecutionService
	validator  *validator.Validate
}

// NewBatchJobHandler creates a new BatchJobHandler.
func NewBatchJobHandler(jobService *service.JobExecutionService) *BatchJobHandler {
	return &BatchJobHandler{
		jobService: jobService,
		validator:  validator.New(),
	}
}

// CreateJob handles POST /api/batch-jobs requests.
func (h *BatchJobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req CreateBatchJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	requests := make([]service.ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		requests = append(requests, service.ItemRequest{
			Topic:      item.Topic,
			Tier:       item.Tier,
			Parameters: item.Parameters,
		})
	}

	job, err := h.jobService.CreateJob(r.Context(), userID, requests)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, jobToResponse(job))
}

// GetJob handles GET /api/batch-jobs/{id} requests.
func (h *BatchJobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	job, items, err := h.jobService.GetJob(r.Context(), jobID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	resp := BatchJobDetailResponse{
		BatchJobResponse: jobToResponse(job),
		Items:            make([]BatchItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, itemToResponse(item))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// CancelJob handles POST /api/batch-jobs/{id}/cancel requests. Cancelling an
// already-terminal job succeeds without changing it.
func (h *BatchJobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	job, err := h.jobService.CancelJob(r.Context(), jobID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// ProcessNextItem handles POST /api/batch-jobs/{id}/process-next requests,
// one poll invocation. Application-level outcomes, item failures included,
// return 200 with the outcome in the body; only a malformed or unknown job
// ID produces an error status.
func (h *BatchJobHandler) ProcessNextItem(w http.ResponseWriter, r *http.Request) {
	jobID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	result, err := h.jobService.ProcessNextItem(r.Context(), jobID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// ResumeJob handles POST /api/batch-jobs/{id}/resume requests: one
// checkpointed server-side run over everything the job has left. The body is
// optional; an empty body resumes without retrying failed items.
func (h *BatchJobHandler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := getPathUUID(r, "id")
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	var req ResumeJobRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
	}

	result, err := h.jobService.ResumeJob(r.Context(), jobID, req.RetryFailed)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
