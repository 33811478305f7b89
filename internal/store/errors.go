package store

import (
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConnection indicates a problem with the backing database.
	ErrConnection = errors.New("store connection error")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// NotFoundError wraps ErrNotFound with record details.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
