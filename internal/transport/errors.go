package transport

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind int

const (
	// Timeout means the request deadline elapsed.
	Timeout Kind = iota + 1
	// NetworkFailure means the connection could not be made or was lost.
	NetworkFailure
	// HTTPError means the endpoint answered with a non-2xx status.
	HTTPError
	// MalformedResponse means a 2xx body was not valid JSON.
	MalformedResponse
)

// String returns a stable, lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case NetworkFailure:
		return "network_failure"
	case HTTPError:
		return "http_error"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is returned by Transport.Send for every failed request.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, only for HTTPError
	Message string // user-facing description
	Err     error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the failure may succeed on retry. Only timeouts
// and network failures qualify; HTTP status errors and malformed bodies are
// terminal.
func (e *Error) Transient() bool {
	return e.Kind == Timeout || e.Kind == NetworkFailure
}

// IsTransient reports whether err is, or wraps, a transient *Error.
func IsTransient(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Transient()
}

// KindOf returns the Kind of err, or 0 when err is not a transport error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}
