// Package errs defines the error taxonomy shared across the control plane:
// a closed set of kinds each subsystem maps its failures onto, so callers
// can branch on disposition (surface, retry, degrade, exit) without parsing
// error strings.
package errs

import "fmt"

// Kind is the closed taxonomy of error categories.
type Kind string

const (
	InvalidInput Kind = "InvalidInput"
	NotFound     Kind = "NotFound"
	Conflict     Kind = "Conflict"
	Unavailable  Kind = "Unavailable"
	Transient    Kind = "Transient"
	Fatal        Kind = "Fatal"
)

// Error wraps an underlying cause with a Kind for disposition-based handling.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// New constructs a kinded error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap constructs a kinded error wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ke, ok := err.(*Error); ok {
			e = ke
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.kind == kind
}

// AlreadyExists is a convenience constructor for the common Conflict case
// of a duplicate server_id, port, or watch.
func AlreadyExists(msg string) *Error { return New(Conflict, msg) }

// NotFoundf is a convenience constructor for a formatted NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// InvalidInputf is a convenience constructor for a formatted InvalidInput error.
func InvalidInputf(format string, args ...any) *Error {
	return New(InvalidInput, fmt.Sprintf(format, args...))
}

// Unavailablef is a convenience constructor for a formatted Unavailable error.
func Unavailablef(format string, args ...any) *Error {
	return New(Unavailable, fmt.Sprintf(format, args...))
}
