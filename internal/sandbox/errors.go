package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is wrapped when a volume, sandbox or file does not exist.
var ErrNotFound = errors.New("sandbox resource not found")

// SandboxError represents a failed sandbox operation.
type SandboxError struct {
	// Provider is the name of the provider that failed.
	Provider string

	// Op is the operation, e.g. "launch" or "read file".
	Op string

	// Message is a human-readable error message.
	Message string

	// Err is the underlying error (if any).
	Err error
}

// Error implements the error interface.
func (e *SandboxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s sandbox %s: %s: %v", e.Provider, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s sandbox %s: %s", e.Provider, e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *SandboxError) Unwrap() error {
	return e.Err
}

// isRetriable checks if an error is worth retrying.
func isRetriable(err error) bool {
	var sbErr *SandboxError
	if !errors.As(err, &sbErr) {
		return false
	}

	msg := strings.ToLower(sbErr.Message)
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "temporary") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "too many requests")
}
