// Package redis provides a lease manager backed by Redis so that several
// cadence processes can share one user population without double-leasing.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/papercomputeco/cadence/pkg/lease"
)

const defaultPrefix = "cadence:lease:"

// renewScript extends the key only while it still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config configures a Redis lease manager.
type Config struct {
	// Addr is the Redis address, e.g. "localhost:6379".
	Addr     string
	Password string
	DB       int

	// Prefix namespaces the lease keys. Defaults to "cadence:lease:".
	Prefix string

	TTL time.Duration
}

// Manager implements lease.Manager with SET NX PX and token-checked scripts.
type Manager struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewManager connects to Redis and verifies the connection.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis lease: address is required")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewManagerWithClient(rdb, cfg.Prefix, cfg.TTL), nil
}

// NewManagerWithClient wraps an existing client.
func NewManagerWithClient(rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Manager {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = lease.DefaultTTL
	}
	return &Manager{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (m *Manager) key(userID string) string {
	return m.prefix + userID
}

func (m *Manager) Acquire(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	ok, err := m.rdb.SetNX(ctx, m.key(userID), token, m.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquiring lease for %s: %w", userID, err)
	}
	if !ok {
		return "", lease.ErrHeld
	}
	return token, nil
}

func (m *Manager) Renew(ctx context.Context, userID, token string) error {
	n, err := renewScript.Run(ctx, m.rdb, []string{m.key(userID)}, token, m.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("renewing lease for %s: %w", userID, err)
	}
	if n == 0 {
		return lease.ErrLost
	}
	return nil
}

func (m *Manager) Release(ctx context.Context, userID, token string) error {
	n, err := releaseScript.Run(ctx, m.rdb, []string{m.key(userID)}, token).Int()
	if err != nil {
		return fmt.Errorf("releasing lease for %s: %w", userID, err)
	}
	if n == 0 {
		return lease.ErrLost
	}
	return nil
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Close closes the Redis client.
func (m *Manager) Close() error {
	return m.rdb.Close()
}
