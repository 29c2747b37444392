// Package errs holds the sentinel errors shared by the engine, the stores and the
// RPC layer. Every rejected operation wraps exactly one of them so callers can
// recover a stable kind with KindOf.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid marks validation failures (bad amount, self transfer, missing ids).
	ErrInvalid = errors.New("invalid")
	// ErrNotFound marks a missing member, group, expense or payment request.
	ErrNotFound = errors.New("not_found")
	// ErrInsufficientFunds is returned alongside the persisted failed transaction.
	ErrInsufficientFunds = errors.New("insufficient_funds")
	// ErrForbidden marks an actor that may not perform a transition.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition marks a workflow transition from the wrong state.
	ErrInvalidTransition = errors.New("invalid_transition")
	// ErrConflict marks a write that collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable marks infrastructure failures. Callers may retry.
	ErrUnavailable = errors.New("unavailable")
)

var kinds = []error{
	ErrInvalid,
	ErrNotFound,
	ErrInsufficientFunds,
	ErrForbidden,
	ErrInvalidTransition,
	ErrConflict,
	ErrUnavailable,
}

// Newf wraps kind with a formatted reason, e.g. "forbidden: only the payer can confirm".
func Newf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf returns the stable kind name of err. Errors that carry no kind are
// infrastructure failures.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ErrUnavailable.Error()
}

// Classified reports whether err already carries one of the kinds.
func Classified(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Unavailable wraps an unclassified error as an infrastructure failure and
// leaves classified errors untouched.
func Unavailable(err error) error {
	if err == nil || Classified(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
