package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/tributary-api/internal/backup"
	"github.com/phrazzld/tributary-api/internal/domain"
	"github.com/phrazzld/tributary-api/internal/service/auth"
	"github.com/phrazzld/tributary-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// leaking internal error types or messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErr *domain.ValidationError

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrItemNotFound),
		errors.Is(err, store.ErrCheckpointNotFound),
		errors.Is(err, store.ErrBackupNotFound),
		errors.Is(err, store.ErrDraftNotFound),
		errors.Is(err, store.ErrConversationNotFound),
		errors.Is(err, store.ErrTemplateNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.As(err, &validationErr),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrJobWithoutItems),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, backup.ErrNoRecords):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErr *domain.ValidationError

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return "Invalid token"

	case errors.Is(err, store.ErrJobNotFound):
		return "Batch job not found"

	case errors.Is(err, store.ErrItemNotFound):
		return "Batch item not found"

	case errors.Is(err, store.ErrBackupNotFound):
		return "Backup not found"

	case errors.Is(err, store.ErrConversationNotFound):
		return "Conversation not found"

	case errors.Is(err, store.ErrTemplateNotFound):
		return "Prompt template not found"

	case errors.Is(err, store.ErrCheckpointNotFound):
		return "Checkpoint not found"

	case errors.Is(err, store.ErrDraftNotFound):
		return "Draft not found"

	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"

	case errors.As(err, &validationErr):
		return "Invalid " + validationErr.Field

	case errors.Is(err, domain.ErrJobWithoutItems):
		return "A batch job needs at least one item"

	case errors.Is(err, backup.ErrNoRecords):
		return "A backup needs at least one conversation"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}
