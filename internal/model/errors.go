package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures produced anywhere in the pipeline or the
// orchestrator. Every error that crosses a package boundary is either a
// *model.Error carrying one of these kinds or wraps one.
type ErrorKind string

const (
	// KindInvalidArgument covers malformed YAML, bad interpolation,
	// unsupported drivers, inconsistent port ranges, bad volume specs,
	// dependency or extends cycles, and invalid environment names.
	KindInvalidArgument ErrorKind = "invalid argument"

	// KindNotFound covers missing compose files, unknown services
	// referenced from depends_on or extends, missing external networks
	// or volumes, missing built images, and missing containers.
	KindNotFound ErrorKind = "not found"

	// KindTimeout is raised when a dependency wait or health wait
	// exceeds its deadline.
	KindTimeout ErrorKind = "timeout"

	// KindInternal covers build process failures and runtime operations
	// that returned an unexpected error.
	KindInternal ErrorKind = "internal error"

	// KindAlreadyExists surfaces runtime create collisions; the
	// orchestrator uses it to decide between reuse and recreate.
	KindAlreadyExists ErrorKind = "already exists"
)

// Error is the typed failure used throughout the module. The Kind drives
// retry/reuse decisions inside the orchestrator; at the CLI boundary
// every kind exits with the general failure code 1.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a typed error wrapping an underlying cause.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrInvalidArgument creates a KindInvalidArgument error.
func ErrInvalidArgument(format string, args ...any) *Error {
	return NewError(KindInvalidArgument, format, args...)
}

// ErrNotFound creates a KindNotFound error.
func ErrNotFound(format string, args ...any) *Error {
	return NewError(KindNotFound, format, args...)
}

// ErrTimeout creates a KindTimeout error.
func ErrTimeout(format string, args ...any) *Error {
	return NewError(KindTimeout, format, args...)
}

// ErrInternal creates a KindInternal error.
func ErrInternal(format string, args ...any) *Error {
	return NewError(KindInternal, format, args...)
}

// KindOf returns the ErrorKind carried by err, unwrapping as needed.
// Errors that are not *model.Error report KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsInvalidArgument reports whether err carries KindInvalidArgument.
func IsInvalidArgument(err error) bool {
	return KindOf(err) == KindInvalidArgument
}

// IsTimeout reports whether err carries KindTimeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsAlreadyExists reports whether err carries KindAlreadyExists.
func IsAlreadyExists(err error) bool {
	return KindOf(err) == KindAlreadyExists
}
