// Package lease grants time-bounded exclusive ownership of a user's progress
// to one session at a time. A lease is fail-fast: a second Acquire for the
// same user returns ErrHeld instead of waiting.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrHeld is returned by Acquire when another holder owns the lease.
	ErrHeld = errors.New("lease held by another session")

	// ErrLost is returned by Renew and Release when the token no longer owns
	// the lease, typically because it expired and was taken over.
	ErrLost = errors.New("lease lost")
)

// DefaultTTL is used when a manager is built with a zero TTL.
const DefaultTTL = 30 * time.Second

// Manager hands out per-user leases identified by an opaque token.
type Manager interface {
	// Acquire takes the lease for userID, returning its token.
	Acquire(ctx context.Context, userID string) (string, error)

	// Renew extends the lease held with token by another TTL.
	Renew(ctx context.Context, userID, token string) error

	// Release gives the lease up. Releasing a lease that has already expired
	// returns ErrLost.
	Release(ctx context.Context, userID, token string) error

	// TTL is the lifetime granted by Acquire and Renew.
	TTL() time.Duration
}
