package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind classifies an error so that callers can decide between retrying,
// absorbing the failure into the conversation, or terminating it.
type Kind string

const (
	// KindProviderUnavailable covers network or auth failures talking to the
	// model backend. Retried with bounded backoff before surfacing.
	KindProviderUnavailable Kind = "provider_unavailable"
	// KindProviderRateLimited is a backend throttle. Retried with backoff.
	KindProviderRateLimited Kind = "provider_rate_limited"
	// KindToolExecutionFailed is a tool failure captured as a ToolResult and
	// fed back to the model. Never fatal to the conversation.
	KindToolExecutionFailed Kind = "tool_execution_failed"
	// KindToolTimeout is a tool that exceeded its per-call deadline.
	KindToolTimeout Kind = "tool_timeout"
	// KindTurnBudgetExceeded means the model/tool loop did not converge
	// within the configured round-trip budget. Fatal to the conversation.
	KindTurnBudgetExceeded Kind = "turn_budget_exceeded"
	// KindSessionNotFound is a client addressing error. Never retried.
	KindSessionNotFound Kind = "session_not_found"
	// KindCancellationRequested is a normal terminal state, not a failure.
	KindCancellationRequested Kind = "cancellation_requested"
	// KindMalformedUpstreamResponse means the provider returned something we
	// could not interpret. Fatal, surfaced, never swallowed.
	KindMalformedUpstreamResponse Kind = "malformed_upstream_response"
)

// kindError attaches a Kind to an underlying error.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// WithKind tags err with a Kind, preserving the wrapped chain.
// Returns nil if err is nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Newf creates a new tagged error in one step.
func Newf(kind Kind, format string, a ...interface{}) error {
	return &kindError{kind: kind, err: New(format, a...)}
}

// KindOf returns the Kind attached to err, walking the wrap chain.
// The second return is false when no Kind is attached.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if stderrors.As(err, &ke) {
		return ke.kind, true
	}
	return "", false
}

// IsRetryable reports whether err should be retried with backoff before
// being surfaced to the caller.
func IsRetryable(err error) bool {
	switch k, _ := KindOf(err); k {
	case KindProviderUnavailable, KindProviderRateLimited:
		return true
	}
	return false
}

// Is delegates to the standard library so callers need only one errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As delegates to the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
