// Package local provides an in-process lease manager for single-node
// deployments and tests.
package local

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/cadence/pkg/lease"
)

type entry struct {
	token   string
	expires time.Time
}

// Manager implements lease.Manager with a mutex-guarded map.
type Manager struct {
	mu     sync.Mutex
	leases map[string]entry
	ttl    time.Duration

	// now is swapped in tests to drive expiry.
	now func() time.Time
}

// NewManager creates a local lease manager granting ttl-long leases.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = lease.DefaultTTL
	}
	return &Manager{
		leases: make(map[string]entry),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the manager's time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Acquire(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.leases[userID]; ok && now.Before(held.expires) {
		return "", lease.ErrHeld
	}

	token := uuid.NewString()
	m.leases[userID] = entry{token: token, expires: now.Add(m.ttl)}
	return token, nil
}

func (m *Manager) Renew(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	held, ok := m.leases[userID]
	if !ok || held.token != token || !now.Before(held.expires) {
		return lease.ErrLost
	}

	held.expires = now.Add(m.ttl)
	m.leases[userID] = held
	return nil
}

func (m *Manager) Release(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.leases[userID]
	if !ok || held.token != token {
		return lease.ErrLost
	}

	delete(m.leases, userID)
	if !m.now().Before(held.expires) {
		return lease.ErrLost
	}
	return nil
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}
