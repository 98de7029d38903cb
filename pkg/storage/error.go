package storage

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a user or item doesn't exist in the store.
type NotFoundError struct {
	UserID string
	ItemID string
}

func (e NotFoundError) Error() string {
	if e.ItemID == "" {
		return "no progress found for user: " + e.UserID
	}
	return fmt.Sprintf("no progress found for user %s item %s", e.UserID, e.ItemID)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// ConflictError is returned when a write's expected version does not match
// the stored version.
type ConflictError struct {
	UserID   string
	ItemID   string
	Expected uint64

	// Actual is the stored version, 0 when the item does not exist.
	Actual uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict for user %s item %s: expected %d, stored %d",
		e.UserID, e.ItemID, e.Expected, e.Actual)
}

// IsConflict reports whether err is, or wraps, a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// ErrStoreUnavailable matches every UnavailableError through errors.Is.
var ErrStoreUnavailable = errors.New("progress store unavailable")

// UnavailableError is returned when the store could not be reached within
// the configured attempts. It is transient: callers keep their dirty state
// and try again later.
type UnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("progress store unavailable: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}
