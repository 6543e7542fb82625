package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrDocumentNotFound, ErrColumnNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a column with an existing key).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStaleTransition is returned when a guarded status update finds the
	// row no longer in the expected state. Callers treat this as a lost
	// race: another delivery of the same job already advanced the run.
	ErrStaleTransition = errors.New("stale status transition")

	// Entity-specific "not found" errors

	// ErrProjectNotFound indicates that the requested project does not exist.
	ErrProjectNotFound = fmt.Errorf("%w: project", ErrNotFound)

	// ErrDocumentNotFound indicates that the requested document does not exist.
	ErrDocumentNotFound = fmt.Errorf("%w: document", ErrNotFound)

	// ErrColumnNotFound indicates that the requested column does not exist.
	ErrColumnNotFound = fmt.Errorf("%w: column", ErrNotFound)

	// ErrRunNotFound indicates that the requested processor run does not exist.
	ErrRunNotFound = fmt.Errorf("%w: processor run", ErrNotFound)

	// ErrPromptRunNotFound indicates that the requested prompt run does not exist.
	ErrPromptRunNotFound = fmt.Errorf("%w: prompt run", ErrNotFound)

	// ErrJobNotFound indicates that the requested queue job does not exist.
	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrColumnKeyExists indicates that a column with the given key already
	// exists in the project.
	ErrColumnKeyExists = fmt.Errorf("%w: column key", ErrDuplicate)

	// ErrRunInFlight indicates that a queued or running run already exists
	// for the (document, column) pair.
	ErrRunInFlight = fmt.Errorf("%w: in-flight run", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
