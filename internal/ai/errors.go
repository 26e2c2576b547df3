package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProviderErrorKind classifies reasoning provider failures.
type ProviderErrorKind string

const (
	ProviderRateLimited ProviderErrorKind = "rate_limited"
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderMalformed   ProviderErrorKind = "malformed"
	ProviderUnavailable ProviderErrorKind = "unavailable"
)

// ProviderError wraps a reasoning provider failure with its classification,
// so callers can decide between retrying, skipping a unit of work, and
// aborting the run.
type ProviderError struct {
	Operation string
	Kind      ProviderErrorKind
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Operation, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewMalformedError reports a response the resilient parser could not turn
// into the expected shape. Malformed responses are not retried through the
// backoff loop; the unit of work is skipped and logged instead.
func NewMalformedError(operation, detail string) *ProviderError {
	return &ProviderError{
		Operation: operation,
		Kind:      ProviderMalformed,
		Err:       errors.New(detail),
	}
}

// IsMalformed reports whether err is a malformed-response provider error.
func IsMalformed(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == ProviderMalformed
}

// classifyProviderError wraps a raw API error with a kind.
func classifyProviderError(operation string, err error) *ProviderError {
	kind := ProviderUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ProviderTimeout
	case strings.Contains(err.Error(), "429") || strings.Contains(strings.ToLower(err.Error()), "rate limit"):
		kind = ProviderRateLimited
	}
	return &ProviderError{Operation: operation, Kind: kind, Err: err}
}
