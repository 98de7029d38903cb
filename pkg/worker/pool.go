// Package worker provides an asynchronous worker pool that writes dirty
// session state to the progress store.
//
// The pool decouples storage round-trips from outcome recording so that a
// learner never waits on the database to see their next item.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/cadence/pkg/logger"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Flusher persists a user's dirty state.
type Flusher interface {
	Flush(ctx context.Context, userID string) error
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func(ctx context.Context, userID string) error

func (f FlushFunc) Flush(ctx context.Context, userID string) error {
	return f(ctx, userID)
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	UserID string

	// Reason is logged with the job, e.g. "tick" or "threshold".
	Reason string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Flusher does the work for each job.
	Flusher Flusher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds a single flush (defaults to 30s).
	JobTimeout time.Duration

	Logger *slog.Logger
}

// Pool processes flush jobs asynchronously via a worker pool. A user has at
// most one job queued at a time.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.Mutex
	queued map[string]struct{}
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Flusher == nil {
		return nil, errors.New("worker pool requires a flusher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
		queued: make(map[string]struct{}),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued or already queued for the same user, false if the
// pool is closed or the queue is full, resulting in the job being dropped.
// A dropped job is harmless: the state stays dirty for the next tick.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	if _, ok := p.queued[job.UserID]; ok {
		return true
	}

	select {
	case p.queue <- job:
		p.queued[job.UserID] = struct{}{}
		p.logger.Debug("flush job queued",
			"user_id", job.UserID,
			"reason", job.Reason,
		)
		return true
	default:
		p.logger.Warn("flush job not queued, queue full, job dropped",
			"user_id", job.UserID,
			"reason", job.Reason,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("flush worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	// Clearing before the flush lets a tick that lands mid-flush queue the
	// ops recorded meanwhile.
	p.mu.Lock()
	delete(p.queued, job.UserID)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	start := time.Now()
	if err := p.config.Flusher.Flush(ctx, job.UserID); err != nil {
		p.logger.Warn("async flush failed",
			"user_id", job.UserID,
			"reason", job.Reason,
			"error", err,
		)
		return
	}

	p.logger.Debug("flush complete",
		"user_id", job.UserID,
		"reason", job.Reason,
		"duration", time.Since(start),
	)
}
