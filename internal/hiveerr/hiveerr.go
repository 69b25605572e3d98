// Package hiveerr defines the error taxonomy shared by every hivecore
// component, and the HTTP/JSON-RPC status mappings the external surfaces
// use to translate it.
package hiveerr

import (
	"errors"
	"fmt"
)

// Code identifies which branch of the taxonomy an error belongs to.
type Code string

const (
	Validation         Code = "validation_error"
	NotFound           Code = "not_found"
	Conflict           Code = "conflict"
	QueueFull          Code = "queue_full"
	Timeout            Code = "timeout"
	CircuitOpen        Code = "circuit_open"
	RecoveryExhausted  Code = "recovery_exhausted"
	Transport          Code = "transport"
	ProtocolError      Code = "protocol_error"
	Internal           Code = "internal"
)

// Error is the concrete error type returned by every hivecore operation.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an Error, preserving errors.Is/As chains.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Is reports whether err carries the given Code, unwrapping as needed.
func Is(err error, code Code) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}

// CodeOf extracts the Code from err, defaulting to Internal for unrecognized
// errors so that callers never have to special-case a missing taxonomy tag.
func CodeOf(err error) Code {
	var he *Error
	if errors.As(err, &he) {
		return he.Code
	}
	return Internal
}

func DuplicateAgent(id string) *Error {
	return Newf(Conflict, "agent %s already registered", id)
}

func IllegalStateTransition(from, to string) *Error {
	return Newf(Conflict, "illegal state transition from %s to %s", from, to)
}

func AgentNotFound(id string) *Error {
	return Newf(NotFound, "agent %s not found", id)
}

func TaskNotFound(id string) *Error {
	return Newf(NotFound, "task %s not found", id)
}

// HTTPStatus implements spec.md §7's user-visible mapping: validation
// errors return 400, not-found 404, backpressure 429, timeouts 504,
// transport failures 502, circuit-open 503, and unexpected errors 500.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case Validation, ProtocolError:
		return 400
	case NotFound:
		return 404
	case Conflict:
		return 409
	case QueueFull:
		return 429
	case Timeout:
		return 504
	case Transport:
		return 502
	case CircuitOpen, RecoveryExhausted:
		return 503
	default:
		return 500
	}
}
