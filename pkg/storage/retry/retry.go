// Package retry wraps a storage.Driver with per-attempt timeouts and
// exponential backoff. Transient failures that outlast the attempt budget
// surface as *storage.UnavailableError.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
)

const (
	defaultMaxAttempts     = 3
	defaultAttemptTimeout  = 5 * time.Second
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

// Config is the retry policy.
type Config struct {
	// MaxAttempts bounds the tries per operation, including the first.
	MaxAttempts int

	// AttemptTimeout bounds each individual call to the wrapped driver.
	AttemptTimeout time.Duration

	InitialInterval time.Duration
	MaxInterval     time.Duration

	Logger *slog.Logger
}

// Driver is a storage.Driver that retries transient failures of next.
type Driver struct {
	next   storage.Driver
	config Config
	logger *slog.Logger
}

// New wraps next with the retry policy in cfg. Zero fields use defaults.
func New(next storage.Driver, cfg Config) *Driver {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaultMaxInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Driver{
		next:   next,
		config: cfg,
		logger: cfg.Logger,
	}
}

// permanent reports errors that another attempt cannot fix.
func permanent(ctx context.Context, err error) bool {
	return storage.IsNotFound(err) ||
		storage.IsConflict(err) ||
		errors.Is(err, storage.ErrInvalidWrite) ||
		ctx.Err() != nil
}

func do[T any](ctx context.Context, d *Driver, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		attempts int
		final    error
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.InitialInterval
	b.MaxInterval = d.config.MaxInterval

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, d.config.AttemptTimeout)
		defer cancel()

		res, err := fn(attemptCtx)
		if err == nil {
			return res, nil
		}
		if permanent(ctx, err) {
			final = err
			return res, backoff.Permanent(err)
		}

		d.logger.Debug("storage attempt failed",
			"op", op,
			"attempt", attempts,
			"error", err,
		)
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.config.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return result, nil
	}
	if final != nil {
		return result, final
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	d.logger.Warn("storage unavailable",
		"op", op,
		"attempts", attempts,
		"error", err,
	)
	return result, &storage.UnavailableError{Op: op, Attempts: attempts, Err: err}
}

func (d *Driver) Load(ctx context.Context, userID string) (*progress.Snapshot, error) {
	return do(ctx, d, "load", func(ctx context.Context) (*progress.Snapshot, error) {
		return d.next.Load(ctx, userID)
	})
}

func (d *Driver) LoadItem(ctx context.Context, userID, itemID string) (progress.ItemProgress, error) {
	return do(ctx, d, "load_item", func(ctx context.Context) (progress.ItemProgress, error) {
		return d.next.LoadItem(ctx, userID, itemID)
	})
}

// CompareAndSwap retries transient failures. A retried write whose earlier
// attempt actually landed comes back as a conflict with Actual equal to the
// written version; callers treat that as success.
func (d *Driver) CompareAndSwap(ctx context.Context, userID string, expectedVersion uint64, p progress.ItemProgress) error {
	_, err := do(ctx, d, "compare_and_swap", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.next.CompareAndSwap(ctx, userID, expectedVersion, p)
	})
	return err
}

func (d *Driver) BatchCompareAndSwap(ctx context.Context, userID string, updates []storage.Update) ([]*storage.ConflictError, error) {
	return do(ctx, d, "batch_compare_and_swap", func(ctx context.Context) ([]*storage.ConflictError, error) {
		return d.next.BatchCompareAndSwap(ctx, userID, updates)
	})
}

func (d *Driver) AppendReviews(ctx context.Context, userID string, records []progress.ReviewRecord) error {
	_, err := do(ctx, d, "append_reviews", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.next.AppendReviews(ctx, userID, records)
	})
	return err
}

func (d *Driver) RecentReviews(ctx context.Context, userID string, limit int) ([]progress.ReviewRecord, error) {
	return do(ctx, d, "recent_reviews", func(ctx context.Context) ([]progress.ReviewRecord, error) {
		return d.next.RecentReviews(ctx, userID, limit)
	})
}

// Close closes the wrapped driver.
func (d *Driver) Close() error {
	return d.next.Close()
}
