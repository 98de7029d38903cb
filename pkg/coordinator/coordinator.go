// Package coordinator owns every user session in the process. It leases a
// user's progress, hydrates a session cache from the store, applies review
// outcomes synchronously and moves the resulting state to the store in the
// background, reconciling version conflicts with writes from other devices.
//
// Only the coordinator writes to the progress store, and it writes for a
// given user from one flush at a time.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/cadence/pkg/eventstream"
	"github.com/papercomputeco/cadence/pkg/eventstream/nop"
	"github.com/papercomputeco/cadence/pkg/lease"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/scheduler"
	"github.com/papercomputeco/cadence/pkg/session"
	"github.com/papercomputeco/cadence/pkg/storage"
	"github.com/papercomputeco/cadence/pkg/worker"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultCloseTimeout  = 10 * time.Second
	defaultHistoryLoad   = 200
)

// Config is the configuration for a Coordinator.
type Config struct {
	// Store is the durable progress store. Wrap it with storage/retry to get
	// timeouts and backoff.
	Store storage.Driver

	// Leases grants per-user exclusivity.
	Leases lease.Manager

	// Scheduler advances item progress. Defaults to scheduler.Default().
	Scheduler *scheduler.Scheduler

	// Publisher receives mastery events. Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// FlushInterval is the background flush period.
	FlushInterval time.Duration

	// RenewInterval is the lease renewal period. Defaults to a third of the
	// lease TTL.
	RenewInterval time.Duration

	// FlushThreshold queues a flush as soon as a session has this many
	// pending ops. Zero disables threshold flushes.
	FlushThreshold int

	// FlushWorkers is the number of concurrent background flushes.
	FlushWorkers uint

	// CloseTimeout bounds the final flush of a closing session.
	CloseTimeout time.Duration

	// HistorySize bounds the review records kept per item in a session.
	HistorySize int

	// HistoryLoad is how many recent review log records a session loads on
	// open.
	HistoryLoad int

	Logger *slog.Logger

	// Now is the clock for records without a timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Coordinator is the sync coordinator.
type Coordinator struct {
	config    Config
	logger    *slog.Logger
	store     storage.Driver
	leases    lease.Manager
	publisher eventstream.Publisher
	scheduler atomic.Pointer[scheduler.Scheduler]

	mu       sync.Mutex
	sessions map[string]*userSession

	// opening reserves users whose sessions are hydrating.
	opening map[string]struct{}

	// orphans holds ops and review records of closed sessions that never
	// reached the store, keyed by user id, until that user opens again.
	orphans         map[string][]session.Batch
	orphanedReviews map[string][]progress.ReviewRecord

	pool *worker.Pool
	cron *gocron.Scheduler
}

// New creates a Coordinator. Call Start to begin background flushing.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errors.New("coordinator requires a store")
	}
	if cfg.Leases == nil {
		return nil, errors.New("coordinator requires a lease manager")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = scheduler.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nop.NewPublisher()
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.RenewInterval <= 0 {
		cfg.RenewInterval = cfg.Leases.TTL() / 3
	}
	if cfg.RenewInterval <= 0 {
		cfg.RenewInterval = cfg.FlushInterval
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	if cfg.HistoryLoad <= 0 {
		cfg.HistoryLoad = defaultHistoryLoad
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Coordinator{
		config:          cfg,
		logger:          cfg.Logger,
		store:           cfg.Store,
		leases:          cfg.Leases,
		publisher:       cfg.Publisher,
		sessions:        make(map[string]*userSession),
		opening:         make(map[string]struct{}),
		orphans:         make(map[string][]session.Batch),
		orphanedReviews: make(map[string][]progress.ReviewRecord),
	}
	c.scheduler.Store(cfg.Scheduler)

	pool, err := worker.NewPool(&worker.Config{
		Flusher:    worker.FlushFunc(c.backgroundFlush),
		NumWorkers: cfg.FlushWorkers,
		JobTimeout: cfg.CloseTimeout,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating flush pool: %w", err)
	}
	c.pool = pool

	return c, nil
}

// Start schedules the background jobs: the tick that queues flushes for
// dirty sessions and the lease renewal.
func (c *Coordinator) Start() error {
	cron := gocron.NewScheduler(time.UTC)
	_, err := cron.Every(c.config.FlushInterval).
		SingletonMode().
		WaitForSchedule().
		Do(c.Tick, context.Background())
	if err != nil {
		return fmt.Errorf("scheduling flush tick: %w", err)
	}
	_, err = cron.Every(c.config.RenewInterval).
		SingletonMode().
		WaitForSchedule().
		Do(c.RenewLeases, context.Background())
	if err != nil {
		return fmt.Errorf("scheduling lease renewal: %w", err)
	}
	cron.StartAsync()

	c.mu.Lock()
	c.cron = cron
	c.mu.Unlock()

	c.logger.Info("coordinator started",
		"flush_interval", c.config.FlushInterval,
		"renew_interval", c.config.RenewInterval,
		"close_timeout", c.config.CloseTimeout,
	)
	return nil
}

// SetScheduler swaps scheduling parameters for every session, open or future.
func (c *Coordinator) SetScheduler(s *scheduler.Scheduler) {
	c.scheduler.Store(s)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sess := range c.sessions {
		sess.cache.SetScheduler(s)
	}
}

// Scheduler returns the scheduler currently in effect.
func (c *Coordinator) Scheduler() *scheduler.Scheduler {
	return c.scheduler.Load()
}

// Open leases the user's progress and hydrates a session. It fails fast
// with lease.ErrHeld when another session owns the user.
func (c *Coordinator) Open(ctx context.Context, userID string) (*progress.Snapshot, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	c.mu.Lock()
	_, open := c.sessions[userID]
	_, hydrating := c.opening[userID]
	if open || hydrating {
		c.mu.Unlock()
		return nil, fmt.Errorf("opening session for %s: %w", userID, lease.ErrHeld)
	}
	c.opening[userID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.opening, userID)
		c.mu.Unlock()
	}()

	token, err := c.leases.Acquire(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("opening session for %s: %w", userID, err)
	}

	snapshot, err := c.store.Load(ctx, userID)
	if err != nil && !storage.IsNotFound(err) {
		c.release(userID, token)
		return nil, fmt.Errorf("loading progress for %s: %w", userID, err)
	}

	history, err := c.store.RecentReviews(ctx, userID, c.config.HistoryLoad)
	if err != nil {
		c.logger.Warn("review history unavailable, starting without it",
			"user_id", userID,
			"error", err,
		)
	}

	cache := session.New(userID, snapshot, c.scheduler.Load(), session.Config{
		HistorySize: c.config.HistorySize,
	})
	cache.LoadHistory(history)

	sess := &userSession{
		userID: userID,
		token:  token,
		cache:  cache,
		state:  StateHydrating,
	}

	c.mu.Lock()
	orphans := c.orphans[userID]
	delete(c.orphans, userID)
	sess.unlogged = c.orphanedReviews[userID]
	delete(c.orphanedReviews, userID)
	c.mu.Unlock()

	if len(orphans) > 0 {
		landed := cache.Adopt(orphans)
		sess.unlogged = append(sess.unlogged, landed...)
		c.logger.Info("re-applied writes from previous session",
			"user_id", userID,
			"items", len(orphans),
			"pending_ops", cache.PendingOps(),
			"already_stored", len(landed),
		)
	}

	sess.state = StateActive
	c.mu.Lock()
	c.sessions[userID] = sess
	c.mu.Unlock()

	snapshot = cache.Snapshot()
	c.logger.Info("session opened",
		"user_id", userID,
		"items", snapshot.Len(),
	)
	return snapshot, nil
}

// session returns the user's session if it accepts operations.
func (c *Coordinator) session(userID string) (*userSession, error) {
	c.mu.Lock()
	sess, ok := c.sessions[userID]
	c.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNoSession)
	}
	if sess.State() == StateClosed {
		return nil, fmt.Errorf("user %s: %w", userID, ErrSessionClosed)
	}
	return sess, nil
}

// RecordOutcome records a session-sourced outcome for an item at now.
func (c *Coordinator) RecordOutcome(ctx context.Context, userID, itemID string, outcome progress.Outcome, now time.Time) (progress.ItemProgress, error) {
	return c.RecordReview(ctx, progress.ReviewRecord{
		UserID:    userID,
		ItemID:    itemID,
		Timestamp: now,
		Outcome:   outcome,
		Source:    progress.SourceSession,
	})
}

// RecordReview applies a review record to the user's session. It never
// waits on the store: the write is queued for the next flush.
func (c *Coordinator) RecordReview(ctx context.Context, rec progress.ReviewRecord) (progress.ItemProgress, error) {
	if !rec.Outcome.Valid() {
		return progress.ItemProgress{}, fmt.Errorf("outcome %q: %w", rec.Outcome, progress.ErrInvalidOutcome)
	}

	sess, err := c.session(rec.UserID)
	if err != nil {
		return progress.ItemProgress{}, err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.config.Now()
	}
	if rec.Source == "" {
		rec.Source = progress.SourceSession
	}

	p, err := sess.cache.RecordOutcome(rec)
	if errors.Is(err, session.ErrDuplicateReview) {
		c.logger.Debug("duplicate review ignored",
			"user_id", rec.UserID,
			"item_id", rec.ItemID,
			"record_id", rec.ID,
		)
		return p, nil
	}
	if err != nil {
		return progress.ItemProgress{}, fmt.Errorf("item %s: %w", rec.ItemID, err)
	}

	rec.ResultingClass = p.DifficultyClass

	c.logger.Debug("outcome recorded",
		"user_id", rec.UserID,
		"item_id", rec.ItemID,
		"outcome", rec.Outcome,
		"source", rec.Source,
		"version", p.Version,
	)

	event := eventstream.NewMasteryEvent(eventstream.EventTypeReviewRecorded, rec.UserID, p, c.config.Now())
	event.Review = &rec
	c.publish(ctx, event)

	if t := c.config.FlushThreshold; t > 0 && sess.cache.PendingOps() >= t {
		c.pool.Enqueue(worker.Job{UserID: rec.UserID, Reason: "threshold"})
	}

	return p, nil
}

// Enroll adds new items to the user's session. Items the user already has
// are ignored.
func (c *Coordinator) Enroll(ctx context.Context, userID string, items []progress.LearningItem, now time.Time) ([]progress.ItemProgress, error) {
	sess, err := c.session(userID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID == "" {
			return nil, errors.New("item id is required")
		}
	}

	added := sess.cache.Enroll(items, now)
	c.logger.Debug("items enrolled",
		"user_id", userID,
		"requested", len(items),
		"added", len(added),
	)
	return added, nil
}

// GetDue returns the user's review queue at now.
func (c *Coordinator) GetDue(userID string, now time.Time) ([]string, error) {
	sess, err := c.session(userID)
	if err != nil {
		return nil, err
	}
	return sess.cache.GetDue(now), nil
}

// Snapshot returns the user's current in-memory progress.
func (c *Coordinator) Snapshot(userID string) (*progress.Snapshot, error) {
	sess, err := c.session(userID)
	if err != nil {
		return nil, err
	}
	return sess.cache.Snapshot(), nil
}

// History returns the recent review records of one item, oldest first.
func (c *Coordinator) History(userID, itemID string) ([]progress.ReviewRecord, error) {
	sess, err := c.session(userID)
	if err != nil {
		return nil, err
	}
	if _, ok := sess.cache.Item(itemID); !ok {
		return nil, fmt.Errorf("item %s: %w", itemID, progress.ErrUnknownItem)
	}
	return sess.cache.History(itemID), nil
}

// Session describes the user's open session.
func (c *Coordinator) Session(userID string) (SessionInfo, error) {
	c.mu.Lock()
	sess, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok {
		return SessionInfo{}, fmt.Errorf("user %s: %w", userID, ErrNoSession)
	}

	return SessionInfo{
		UserID:     userID,
		State:      sess.State(),
		Items:      sess.cache.Snapshot().Len(),
		PendingOps: sess.cache.PendingOps(),
	}, nil
}

// Sessions returns the ids of every user with an open session.
func (c *Coordinator) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.sessions))
}

// Flush writes the user's pending state to the store now.
func (c *Coordinator) Flush(ctx context.Context, userID string) error {
	sess, err := c.session(userID)
	if err != nil {
		return err
	}
	return c.flush(ctx, sess)
}

// backgroundFlush is the worker pool entry point. Sessions that closed after
// the job was queued are skipped.
func (c *Coordinator) backgroundFlush(ctx context.Context, userID string) error {
	err := c.Flush(ctx, userID)
	if errors.Is(err, ErrNoSession) || errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

// Tick renews every lease and queues flushes for dirty sessions. A session
// whose lease was lost is revoked.
func (c *Coordinator) Tick(ctx context.Context) {
	for _, sess := range c.renewLeases(ctx) {
		if sess.cache.Dirty() || len(sess.unloggedReviews()) > 0 {
			c.pool.Enqueue(worker.Job{UserID: sess.userID, Reason: "tick"})
		}
	}
}

// RenewLeases extends the lease of every open session and revokes sessions
// whose lease was lost.
func (c *Coordinator) RenewLeases(ctx context.Context) {
	c.renewLeases(ctx)
}

// renewLeases returns the sessions that still hold their lease.
func (c *Coordinator) renewLeases(ctx context.Context) []*userSession {
	c.mu.Lock()
	sessions := slices.Collect(maps.Values(c.sessions))
	c.mu.Unlock()

	live := sessions[:0]
	for _, sess := range sessions {
		if sess.State() == StateClosed {
			continue
		}

		err := c.leases.Renew(ctx, sess.userID, sess.token)
		switch {
		case errors.Is(err, lease.ErrLost):
			c.revoke(sess)
			continue
		case err != nil:
			c.logger.Warn("lease renewal failed",
				"user_id", sess.userID,
				"error", err,
			)
		}
		live = append(live, sess)
	}
	return live
}

// revoke closes a session whose lease expired under it. Its pending writes
// become orphans so they are not lost if the user returns to this process.
func (c *Coordinator) revoke(sess *userSession) {
	if prev := sess.close(); prev == StateClosed {
		return
	}

	sess.flushMu.Lock()
	defer sess.flushMu.Unlock()

	pending := sess.cache.Pending()
	c.mu.Lock()
	delete(c.sessions, sess.userID)
	c.orphans[sess.userID] = append(c.orphans[sess.userID], pending...)
	c.orphanedReviews[sess.userID] = append(c.orphanedReviews[sess.userID], sess.unloggedReviews()...)
	c.mu.Unlock()

	c.logger.Error("session lease lost, session revoked",
		"user_id", sess.userID,
		"orphaned_items", len(pending),
	)
}

// Close flushes the user's session, bounded by the close timeout, and
// releases the lease. Writes that could not be flushed are kept in memory
// and re-applied the next time the user opens a session here.
func (c *Coordinator) Close(ctx context.Context, userID string) error {
	c.mu.Lock()
	sess, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("user %s: %w", userID, ErrNoSession)
	}
	if prev := sess.close(); prev == StateClosed {
		return fmt.Errorf("user %s: %w", userID, ErrSessionClosed)
	}

	flushCtx, cancel := context.WithTimeout(ctx, c.config.CloseTimeout)
	defer cancel()

	if err := c.flush(flushCtx, sess); err != nil {
		c.logger.Warn("final flush incomplete",
			"user_id", userID,
			"error", err,
		)
	}

	sess.flushMu.Lock()
	pending := sess.cache.Pending()
	unlogged := sess.unloggedReviews()
	sess.flushMu.Unlock()

	c.mu.Lock()
	delete(c.sessions, userID)
	if len(pending) > 0 {
		c.orphans[userID] = append(c.orphans[userID], pending...)
	}
	if len(unlogged) > 0 {
		c.orphanedReviews[userID] = append(c.orphanedReviews[userID], unlogged...)
	}
	c.mu.Unlock()

	if len(pending) > 0 {
		c.logger.Warn("session closed with unflushed writes",
			"user_id", userID,
			"items", len(pending),
		)
	}

	c.release(userID, sess.token)
	c.logger.Info("session closed", "user_id", userID)
	return nil
}

func (c *Coordinator) release(userID, token string) {
	// The release must happen even when the caller's context is done.
	ctx, cancel := context.WithTimeout(context.Background(), c.config.CloseTimeout)
	defer cancel()

	if err := c.leases.Release(ctx, userID, token); err != nil {
		c.logger.Warn("lease release failed",
			"user_id", userID,
			"error", err,
		)
	}
}

// Orphaned returns the number of items with writes held for users whose
// sessions closed before those writes reached the store.
func (c *Coordinator) Orphaned(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.orphans[userID])
}

// Shutdown stops the background tick, closes every session in parallel and
// drains the flush pool.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cron := c.cron
	c.cron = nil
	users := slices.Collect(maps.Keys(c.sessions))
	c.mu.Unlock()

	if cron != nil {
		cron.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, userID := range users {
		g.Go(func() error {
			err := c.Close(gctx, userID)
			if errors.Is(err, ErrNoSession) || errors.Is(err, ErrSessionClosed) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	c.pool.Close()

	c.logger.Info("coordinator stopped", "sessions_closed", len(users))
	return err
}

func (c *Coordinator) publish(ctx context.Context, event *eventstream.MasteryEvent) {
	if err := c.publisher.PublishMastery(ctx, event); err != nil {
		c.logger.Warn("mastery event not published",
			"user_id", event.UserID,
			"item_id", event.ItemID,
			"event_type", event.EventType,
			"error", err,
		)
	}
}
