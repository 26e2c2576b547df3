package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ConsistencyError indicates that an AI response or a stored structure
// violates an internal invariant. Retryable consistency errors (a batch
// response whose item count does not match the request) may succeed on a
// fresh attempt; non-retryable ones (a cycle in the feature hierarchy)
// indicate a bug or corrupted state.
type ConsistencyError struct {
	Operation string
	Message   string
	Retryable bool
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// NewConsistencyError creates a consistency error for the given operation.
func NewConsistencyError(operation, format string, args ...interface{}) *ConsistencyError {
	return &ConsistencyError{
		Operation: operation,
		Message:   fmt.Sprintf(format, args...),
	}
}

// NewRetryableConsistencyError creates a consistency error that callers may
// retry, typically by re-issuing the AI request.
func NewRetryableConsistencyError(operation, format string, args ...interface{}) *ConsistencyError {
	return &ConsistencyError{
		Operation: operation,
		Message:   fmt.Sprintf(format, args...),
		Retryable: true,
	}
}

// IsRetryableConsistency reports whether err is a retryable ConsistencyError.
func IsRetryableConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce) && ce.Retryable
}
