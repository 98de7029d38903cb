package coordinator

import (
	"slices"
	"sync"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/session"
)

// State is the lifecycle state of a user session.
type State int

const (
	StateHydrating State = iota
	StateActive
	StateFlushing
	StateClosed
)

var stateNames = [...]string{"hydrating", "active", "flushing", "closed"}

func (s State) String() string {
	if s < StateHydrating || s > StateClosed {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// userSession is the coordinator's bookkeeping for one leased user. The
// identity fields and cache are set before the session is published to the
// coordinator's map and never change afterwards.
type userSession struct {
	userID string
	token  string
	cache  *session.Cache

	// flushMu serializes flushes for the user.
	flushMu sync.Mutex

	// mu guards state and unlogged.
	mu    sync.Mutex
	state State

	// unlogged holds review records whose progress write landed but whose
	// review log append has not succeeded yet.
	unlogged []progress.ReviewRecord
}

func (s *userSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// close moves the session to StateClosed and returns the previous state.
func (s *userSession) close() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateClosed
	return prev
}

func (s *userSession) unloggedReviews() []progress.ReviewRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.unlogged)
}

func (s *userSession) addUnlogged(records []progress.ReviewRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlogged = append(s.unlogged, records...)
}

// takeUnlogged empties the unlogged list and returns what it held.
func (s *userSession) takeUnlogged() []progress.ReviewRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.unlogged
	s.unlogged = nil
	return records
}

// transition moves from one state to another, reporting whether the session
// was in from.
func (s *userSession) transition(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// SessionInfo describes an open session.
type SessionInfo struct {
	UserID     string `json:"user_id"`
	State      State  `json:"state"`
	Items      int    `json:"items"`
	PendingOps int    `json:"pending_ops"`
}
