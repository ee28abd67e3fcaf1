package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a turn is already in flight.
	ErrConflict = errors.New("conversation is already running")

	// ErrValidation marks bad input from a caller.
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFound wraps ErrNotFound with the missing id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
