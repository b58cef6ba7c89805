// Package fault defines the error taxonomy shared by every layer of the
// gateway. Component boundaries return *Error values; the protocol server
// maps them onto JSON-RPC error objects.
package fault

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	// Protocol / lifecycle
	KindParseError     Kind = "parse_error"
	KindInvalidParams  Kind = "invalid_params"
	KindNotInitialized Kind = "not_initialized"
	KindShuttingDown   Kind = "shutting_down"
	KindMethodNotFound Kind = "method_not_found"

	// Security
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindRateLimited  Kind = "rate_limited"
	KindLockedOut    Kind = "locked_out"

	// NLP
	KindEmptyInput    Kind = "empty_input"
	KindLowConfidence Kind = "low_confidence"
	KindAmbiguous     Kind = "ambiguous"

	// Router
	KindPreconditionFailed Kind = "precondition_failed"

	// Backend-mapped
	KindBackendUnavailable Kind = "backend_unavailable"
	KindBackendAuthFailed  Kind = "backend_auth_failed"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalidArgument    Kind = "invalid_argument"

	// Execution / system
	KindTimedOut   Kind = "timed_out"
	KindCancelled  Kind = "cancelled"
	KindOverloaded Kind = "overloaded"
	KindInternal   Kind = "internal_error"
)

// JSON-RPC error codes used on the protocol boundary.
const (
	CodeApplicationError = -32000
	CodeUnauthorized     = -32001
	CodeNotInitialized   = -32002
	CodeForbidden        = -32003
	CodeShuttingDown     = -32004
	CodeRateLimited      = -32005
	CodeOverloaded       = -32006
	CodeInternalError    = -32603
	CodeInvalidParams    = -32602
	CodeMethodNotFound   = -32601
	CodeParseError       = -32700
)

// Error is the tagged failure variant carried across component boundaries.
type Error struct {
	Kind       Kind
	Detail     string
	Retryable  bool
	RetryAfter time.Duration
	// Attributes carries structured context (NLP candidates, backend status,
	// offending parameter names) surfaced in the JSON-RPC error data.
	Attributes map[string]interface{}
	cause      error
}

// New creates a fault of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates a fault with a formatted detail message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault that records err as its cause.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// WithRetryable marks the fault as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithRetryAfter attaches a retry hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// WithAttribute attaches a structured context value.
func (e *Error) WithAttribute(key string, value interface{}) *Error {
	if e.Attributes == nil {
		e.Attributes = make(map[string]interface{})
	}
	e.Attributes[key] = value
	return e
}

// As extracts a *Error from err, converting unknown errors to internal_error.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(KindInternal, "unclassified failure", err)
}

// KindOf returns the taxonomy kind for err, internal_error for unknown errors.
func KindOf(err error) Kind {
	if fe := As(err); fe != nil {
		return fe.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err may be retried automatically. Only faults
// explicitly marked retryable qualify; unknown errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// Code maps a taxonomy kind to its JSON-RPC error code.
func Code(kind Kind) int {
	switch kind {
	case KindParseError:
		return CodeParseError
	case KindMethodNotFound:
		return CodeMethodNotFound
	case KindInvalidParams:
		return CodeInvalidParams
	case KindUnauthorized, KindLockedOut:
		return CodeUnauthorized
	case KindNotInitialized:
		return CodeNotInitialized
	case KindForbidden:
		return CodeForbidden
	case KindShuttingDown:
		return CodeShuttingDown
	case KindRateLimited:
		return CodeRateLimited
	case KindOverloaded:
		return CodeOverloaded
	case KindInternal:
		return CodeInternalError
	default:
		return CodeApplicationError
	}
}

// Data renders the structured payload carried in the JSON-RPC error object.
func (e *Error) Data() map[string]interface{} {
	data := map[string]interface{}{
		"kind":        string(e.Kind),
		"detail":      e.Detail,
		"recoverable": e.Retryable,
	}
	if e.RetryAfter > 0 {
		data["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	for k, v := range e.Attributes {
		data[k] = v
	}
	return data
}
