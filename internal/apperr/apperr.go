// Package apperr defines the client's error taxonomy so callers can tell
// transport failures, rejected credentials, bad input and unparseable
// payloads apart with errors.As.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the category of a client error.
type Kind int

const (
	// KindNetwork covers transport failures, timeouts and non-2xx replies.
	KindNetwork Kind = iota
	// KindAuth means the token is missing, invalid, expired or rejected.
	KindAuth
	// KindParse is a payload that could not be decoded.
	KindParse
	// KindValidation is input rejected before any I/O.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with its kind and the operation that
// produced it. Status is the HTTP status for remote failures, 0 otherwise.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}

// Status builds a network error for a non-2xx reply.
func Status(op string, status int, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Status: status, Err: err}
}

func Auth(op string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

func Parse(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

func Validation(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindNetwork for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// Retryable reports whether a read may be attempted again: transport
// failures and 5xx replies qualify, caller cancellation does not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindNetwork {
		return false
	}
	if e.Status == 0 {
		return true
	}
	return e.Status >= 500
}

// Timeout reports whether err was caused by a deadline or a net timeout.
func Timeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Message returns the user-facing part of err: the wrapped cause of an
// *Error without its op and kind prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
