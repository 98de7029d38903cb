package progress

import "errors"

var (
	// ErrInvalidOutcome is returned at API boundaries for outcomes outside
	// correct-easy, correct-hard and incorrect.
	ErrInvalidOutcome = errors.New("invalid review outcome")

	// ErrUnknownItem is returned when an outcome references an item that is not
	// part of the user's snapshot.
	ErrUnknownItem = errors.New("unknown learning item")
)
