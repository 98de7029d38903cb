package coordinator

import "errors"

var (
	// ErrNoSession is returned for operations on a user without an open session.
	ErrNoSession = errors.New("no open session for user")

	// ErrSessionClosed is returned for operations on a session that is closing
	// or was revoked.
	ErrSessionClosed = errors.New("session closed")
)
