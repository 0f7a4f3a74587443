package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the evaluation core's error taxonomy. Kinds, not type names:
// callers switch on Kind, never on a concrete Go type.
type ErrorKind string

const (
	KindInvalid           ErrorKind = "invalid"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindConflict          ErrorKind = "conflict"
	KindStaleVersion      ErrorKind = "stale_version"
	KindIllegalTransition ErrorKind = "illegal_transition"
	KindTimeout           ErrorKind = "timeout"
	KindTransport         ErrorKind = "transport"
	KindRateLimited       ErrorKind = "rate_limited"
	KindCircuitOpen       ErrorKind = "circuit_open"
	KindCancelled         ErrorKind = "cancelled"
	KindInternal          ErrorKind = "internal"
)

// Error is a structured error carrying the kind, a message, and metadata
// needed to map it onto an HTTP response without leaking internals.
type Error struct {
	Kind          ErrorKind `json:"kind"`
	Message       string    `json:"message"`
	HTTPStatus    int       `json:"http_status,omitempty"`
	Retryable     bool      `json:"retryable"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Cause         error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: defaultHTTPStatus(kind), Retryable: defaultRetryable(kind)}
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

func defaultHTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindInvalid:
		return 422
	case KindNotFound:
		return 404
	case KindForbidden:
		return 403
	case KindConflict, KindStaleVersion:
		return 409
	case KindIllegalTransition:
		return 409
	case KindTimeout:
		return 504
	case KindTransport, KindRateLimited:
		return 503
	case KindCircuitOpen:
		return 503
	case KindCancelled:
		return 409
	default:
		return 500
	}
}

func defaultRetryable(kind ErrorKind) bool {
	switch kind {
	case KindTimeout, KindTransport, KindRateLimited, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err (or a wrapped *Error within it) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorKind extracts the error kind from err, or KindInternal if err is
// not a *Error.
func GetErrorKind(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}
