package scratchdir

import (
	"errors"
	"fmt"
)

// Kind classifies scratchdir failures for callers that branch on them.
type Kind string

const (
	// KindCreate covers exhausted name-collision retries and any other I/O
	// failure while materializing a directory.
	KindCreate Kind = "create"
	// KindCopy covers traversal, read and write failures during Copy, and
	// copying into a closed handle.
	KindCopy Kind = "copy"
	// KindClose covers removal failures during Close. The handle stays
	// active, so Close may be retried.
	KindClose Kind = "close"
	// KindAlreadyClosed is returned by Close on an already closed handle.
	KindAlreadyClosed Kind = "already_closed"
)

// Error is the structured error returned by all scratchdir operations.
type Error struct {
	Kind      Kind
	Path      string
	Cause     error
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scratchdir %s %s: %v", e.Kind, e.Path, e.Cause)
	}
	return fmt.Sprintf("scratchdir %s %s", e.Kind, e.Path)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is a scratchdir error of the given kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// IsAlreadyClosed reports whether err came from closing a closed handle.
func IsAlreadyClosed(err error) bool {
	return IsKind(err, KindAlreadyClosed)
}

// IsRetryable reports whether the failed operation may be retried on the
// same handle.
func IsRetryable(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

func copyError(path string, cause error) *Error {
	return &Error{Kind: KindCopy, Path: path, Cause: cause}
}
