package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrRunNotFound indicates that no chain summary exists for the run.
	ErrRunNotFound = fmt.Errorf("%w: chain run", ErrNotFound)

	// ErrTaskResultNotFound indicates a cached task result is missing or expired.
	ErrTaskResultNotFound = fmt.Errorf("%w: task result", ErrNotFound)

	// ErrAudioNotFound indicates no synthesized audio exists for the run.
	ErrAudioNotFound = fmt.Errorf("%w: audio", ErrNotFound)

	// ErrCredentialsNotFound indicates no credentials have been configured.
	ErrCredentialsNotFound = fmt.Errorf("%w: credentials", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError is a store failure with the entity and operation that failed.
type StoreError struct {
	Entity    string // e.g. "task_result", "chain"
	Operation string // e.g. "save", "get"
	Message   string
	Err       error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
