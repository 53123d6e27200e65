package source

import (
	"errors"
	"strings"
)

// ErrorCode categorizes resolution and metadata errors.
//
// Callers branch on the code via AsError / IsCode rather than matching
// message text.
type ErrorCode int

const (
	// ErrUnresolvable indicates no protocol and no local search path entry
	// matched the input URI or path.
	ErrUnresolvable ErrorCode = iota

	// ErrInvalidName indicates a malformed name was passed to
	// disambiguation (for example an absolute path). This is a programmer
	// error and is never retried.
	ErrInvalidName

	// ErrObjectNotFound indicates a validated describe or a direct lookup
	// found one or more ids missing from the backend.
	ErrObjectNotFound

	// ErrAmbiguousObject indicates a container-unknown reference resolved
	// to objects with conflicting expected attributes (for example a
	// caller-asserted name mismatching the backend's actual name).
	ErrAmbiguousObject

	// ErrTransport wraps an opaque failure from a backend collaborator.
	ErrTransport
)

func (c ErrorCode) String() string {
	switch c {
	case ErrUnresolvable:
		return "unresolvable"
	case ErrInvalidName:
		return "invalid name"
	case ErrObjectNotFound:
		return "object not found"
	case ErrAmbiguousObject:
		return "ambiguous object"
	case ErrTransport:
		return "transport error"
	default:
		return "unknown"
	}
}

// Error is a typed resolution/metadata error carrying the offending
// identifiers so failures can be diagnosed precisely. Batched validation
// failures enumerate every missing id in IDs, not just the first.
type Error struct {
	// Code is the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// URI is the input URI or path related to the error, if applicable.
	URI string

	// IDs lists the offending object ids, if applicable.
	IDs []string

	// Container is the owning container related to the error, if known.
	Container string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.URI != "" {
		b.WriteString(": ")
		b.WriteString(e.URI)
	}
	if len(e.IDs) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.IDs, ", "))
	}
	if e.Container != "" {
		b.WriteString(" (container ")
		b.WriteString(e.Container)
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err (or anything it wraps) is a *Error with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var se *Error
	return errors.As(err, &se) && se.Code == code
}

// NewUnresolvable builds an ErrUnresolvable error for the given input.
func NewUnresolvable(uri string) *Error {
	return &Error{Code: ErrUnresolvable, Message: "no protocol or local path matches", URI: uri}
}

// NewInvalidName builds an ErrInvalidName error for the given name.
func NewInvalidName(name, reason string) *Error {
	return &Error{Code: ErrInvalidName, Message: "invalid name (" + reason + ")", URI: name}
}

// NewObjectNotFound builds an ErrObjectNotFound error enumerating every
// missing id.
func NewObjectNotFound(container string, ids ...string) *Error {
	return &Error{Code: ErrObjectNotFound, Message: "object not found", IDs: ids, Container: container}
}

// NewAmbiguousObject builds an ErrAmbiguousObject error for the given id.
func NewAmbiguousObject(id, message string) *Error {
	return &Error{Code: ErrAmbiguousObject, Message: message, IDs: []string{id}}
}

// NewTransport wraps an opaque collaborator failure.
func NewTransport(uri string, cause error) *Error {
	return &Error{Code: ErrTransport, Message: "backend call failed", URI: uri, Cause: cause}
}
