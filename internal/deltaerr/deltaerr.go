// Package deltaerr defines the error kinds surfaced by the delta
// synchronization core, matching the propagation rules of a cycle: some
// kinds are always fatal to a cycle, others (push I/O) are expected to be
// converted into per-record failures by the caller before they ever reach
// here.
package deltaerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that need to branch on failure mode
// (e.g. an orchestrator deciding whether a cycle is retryable).
type Kind string

const (
	// ConfigError marks bad or missing backend configuration.
	ConfigError Kind = "config_error"
	// NotInitialized marks use of a baseline store before Initialize.
	NotInitialized Kind = "not_initialized"
	// IO marks filesystem, bucket, or database I/O failure.
	IO Kind = "io"
	// ParseError marks a malformed NDJSON line or non-decodable payload.
	ParseError Kind = "parse_error"
	// DepthExceeded marks record nesting deeper than the bound.
	DepthExceeded Kind = "depth_exceeded"
	// ValidationFailure is reserved for upstream use; the core never raises it.
	ValidationFailure Kind = "validation_failure"
	// Cancelled marks cancellation observed at a suspension point.
	Cancelled Kind = "cancelled"
)

// Error is the concrete error type raised by the packages under internal/
// (dsn and envkit return plain errors, which their callers wrap). It always
// carries a Kind so callers can branch with Is, and
// optionally wraps a lower-level cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with no cause, formatting the message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates an Error that wraps cause, formatting the message.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether the first *Error found in err's chain (err itself or
// something it wraps) has the given Kind. A *Error wrapped inside that one
// is not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
