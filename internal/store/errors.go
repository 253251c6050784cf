package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrJobNotFound, ErrCheckpointNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when an update operation fails, for example
	// because the entity does not exist or the update violates constraints.
	ErrUpdateFailed = errors.New("update failed")

	// ErrDeleteFailed is returned when a delete operation fails, for example
	// because the entity is referenced by other entities.
	ErrDeleteFailed = errors.New("delete failed")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrNoQueuedItems is returned by an item claim when the job has no
	// items left in the queued state. Not a failure for the poll loop;
	// callers use it to decide the job is done.
	ErrNoQueuedItems = errors.New("no queued items available")

	// Entity-specific "not found" errors

	// ErrJobNotFound indicates that the requested batch job does not exist in the store.
	ErrJobNotFound = fmt.Errorf("%w: batch job", ErrNotFound)

	// ErrItemNotFound indicates that the requested batch item does not exist in the store.
	ErrItemNotFound = fmt.Errorf("%w: batch item", ErrNotFound)

	// ErrCheckpointNotFound indicates that no checkpoint exists for the job.
	// This is an expected outcome on a first run, distinct from a query failure.
	ErrCheckpointNotFound = fmt.Errorf("%w: batch checkpoint", ErrNotFound)

	// ErrBackupNotFound indicates that the requested backup does not exist in the store.
	ErrBackupNotFound = fmt.Errorf("%w: backup", ErrNotFound)

	// ErrDraftNotFound indicates that the requested draft does not exist in the store.
	ErrDraftNotFound = fmt.Errorf("%w: draft", ErrNotFound)

	// ErrConversationNotFound indicates that the requested conversation does not exist.
	ErrConversationNotFound = fmt.Errorf("%w: conversation", ErrNotFound)

	// ErrTemplateNotFound indicates that no prompt template matched the lookup.
	ErrTemplateNotFound = fmt.Errorf("%w: prompt template", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "batch_job", "backup")
	Operation string // The operation that failed (e.g., "create", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
