// Package session implements the per-user session cache: a leased, mutable
// working copy of a progress snapshot that records outcomes synchronously
// and tracks what still has to reach the durable store.
//
// For every item the cache keeps the last persisted state (the base), the
// queue of unpersisted ops, and the current state obtained by replaying the
// ops on the base. The current version is always the base version plus the
// number of pending ops.
package session

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/scheduler"
)

const defaultHistorySize = 20

// ErrDuplicateReview is returned by RecordOutcome, together with the item's
// current state, for a record whose id was already applied.
var ErrDuplicateReview = errors.New("review already recorded")

type entry struct {
	base    progress.ItemProgress
	hasBase bool
	pending []Op
	current progress.ItemProgress
}

// Config configures a Cache.
type Config struct {
	// HistorySize bounds the recent review records kept per item.
	HistorySize int
}

// Batch is the pending work for one item, as handed to a flush.
type Batch struct {
	ItemID string

	// ExpectedVersion is the version of the persisted base, 0 for an item
	// that has never been written.
	ExpectedVersion uint64

	// Progress is the state to write.
	Progress progress.ItemProgress

	// Ops are the pending ops that produced Progress from the base.
	Ops []Op
}

// Cache is the session cache for one user. It is safe for concurrent use.
type Cache struct {
	mu          sync.RWMutex
	userID      string
	scheduler   *scheduler.Scheduler
	items       map[string]*entry
	history     map[string][]progress.ReviewRecord
	historySize int
}

// New hydrates a cache from a persisted snapshot. A nil snapshot starts an
// empty cache.
func New(userID string, snapshot *progress.Snapshot, s *scheduler.Scheduler, cfg Config) *Cache {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}

	c := &Cache{
		userID:      userID,
		scheduler:   s,
		items:       make(map[string]*entry),
		history:     make(map[string][]progress.ReviewRecord),
		historySize: cfg.HistorySize,
	}

	if snapshot != nil {
		for id, p := range snapshot.Items {
			c.items[id] = &entry{base: p, hasBase: true, current: p}
		}
	}
	return c
}

// UserID returns the user this cache belongs to.
func (c *Cache) UserID() string {
	return c.userID
}

// SetScheduler swaps the scheduler used for subsequent outcomes.
func (c *Cache) SetScheduler(s *scheduler.Scheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduler = s
}

// LoadHistory seeds the per-item history from review log records in any
// order.
func (c *Cache) LoadHistory(records []progress.ReviewRecord) {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b progress.ReviewRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range sorted {
		c.pushHistory(rec)
	}
}

// pushHistory must be called with mu held.
func (c *Cache) pushHistory(rec progress.ReviewRecord) {
	h := append(c.history[rec.ItemID], rec)
	if over := len(h) - c.historySize; over > 0 {
		h = slices.Delete(h, 0, over)
	}
	c.history[rec.ItemID] = h
}

// History returns the recent review records of an item, oldest first.
func (c *Cache) History(itemID string) []progress.ReviewRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.history[itemID])
}

// Item returns the current state of an item.
func (c *Cache) Item(itemID string) (progress.ItemProgress, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[itemID]
	if !ok {
		return progress.ItemProgress{}, false
	}
	return e.current, true
}

// Snapshot returns a copy of the current state of every item.
func (c *Cache) Snapshot() *progress.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := progress.NewSnapshot(c.userID)
	for _, e := range c.items {
		snapshot.Put(e.current)
	}
	return snapshot
}

// GetDue returns the review queue at now.
func (c *Cache) GetDue(now time.Time) []string {
	return c.Snapshot().Due(now)
}

// RecordOutcome applies a review to the item's current state and queues it
// for persistence. The record's outcome must be valid and the item known.
// Submitting a record id a second time leaves the item untouched.
func (c *Cache) RecordOutcome(rec progress.ReviewRecord) (progress.ItemProgress, error) {
	if !rec.Outcome.Valid() {
		return progress.ItemProgress{}, progress.ErrInvalidOutcome
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[rec.ItemID]
	if !ok {
		return progress.ItemProgress{}, progress.ErrUnknownItem
	}
	if rec.ID != "" && (c.seen(rec) || queued(e.pending, rec.ID)) {
		return e.current, ErrDuplicateReview
	}

	e.current = c.scheduler.Advance(e.current, rec.Outcome, rec.Timestamp)
	rec.ResultingClass = e.current.DifficultyClass
	e.pending = append(e.pending, Op{Kind: OpReview, Review: rec})
	c.pushHistory(rec)
	return e.current, nil
}

// Enroll adds new items, queued as inserts. Items already in the cache are
// left untouched and omitted from the result.
func (c *Cache) Enroll(items []progress.LearningItem, now time.Time) []progress.ItemProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	var added []progress.ItemProgress
	for _, item := range items {
		if _, exists := c.items[item.ID]; exists {
			continue
		}
		op := Op{Kind: OpEnroll, Item: item, At: now}
		current, _ := Replay(c.scheduler, progress.ItemProgress{}, false, []Op{op})
		c.items[item.ID] = &entry{
			pending: []Op{op},
			current: current,
		}
		added = append(added, current)
	}
	return added
}

// Dirty reports whether any item has unpersisted ops.
func (c *Cache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.items {
		if len(e.pending) > 0 {
			return true
		}
	}
	return false
}

// PendingOps returns the number of unpersisted ops across all items.
func (c *Cache) PendingOps() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, e := range c.items {
		n += len(e.pending)
	}
	return n
}

// Pending returns a batch for every dirty item, ordered by item id.
func (c *Cache) Pending() []Batch {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var batches []Batch
	for _, id := range slices.Sorted(maps.Keys(c.items)) {
		e := c.items[id]
		if len(e.pending) == 0 {
			continue
		}
		batches = append(batches, Batch{
			ItemID:          id,
			ExpectedVersion: e.base.Version,
			Progress:        e.current,
			Ops:             slices.Clone(e.pending),
		})
	}
	return batches
}

// Persisted rebases an item after the store accepted p as the result of its
// first n pending ops. Ops recorded since the batch was taken stay pending
// and are replayed on top of p.
func (c *Cache) Persisted(itemID string, p progress.ItemProgress, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[itemID]
	if !ok {
		return
	}

	n = min(n, len(e.pending))
	e.base = p
	e.hasBase = true
	e.pending = slices.Clone(e.pending[n:])
	e.current, _ = Replay(c.scheduler, e.base, true, e.pending)
}

// Adopt re-applies ops left unpersisted by an earlier session on top of the
// freshly loaded state. Reviews whose record id already appears in the loaded
// history reached the store and are dropped.
//
// A batch whose item is stored past the batch's expected version is not
// replayed: its write landed after the earlier session gave up on it. Adopt
// returns the reviews of such batches, which still have to be appended to
// the review log.
func (c *Cache) Adopt(batches []Batch) []progress.ReviewRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	var landed []progress.ReviewRecord
	for _, b := range batches {
		e, ok := c.items[b.ItemID]
		if ok && e.hasBase && e.base.Version > b.ExpectedVersion {
			for _, rec := range Reviews(b.Ops) {
				if c.seen(rec) {
					continue
				}
				c.pushHistory(rec)
				landed = append(landed, rec)
			}
			continue
		}
		if !ok {
			e = &entry{}
			c.items[b.ItemID] = e
		}

		var kept []Op
		current, exists := e.current, e.hasBase || len(e.pending) > 0
		for _, op := range b.Ops {
			if op.Kind == OpReview && c.seen(op.Review) {
				continue
			}
			next, nowExists := Replay(c.scheduler, current, exists, []Op{op})
			if next.Version == current.Version && nowExists == exists {
				continue
			}
			current, exists = next, nowExists
			kept = append(kept, op)
			if op.Kind == OpReview {
				c.pushHistory(op.Review)
			}
		}

		if !exists {
			delete(c.items, b.ItemID)
			continue
		}
		e.pending = append(e.pending, kept...)
		e.current = current
	}
	return landed
}

// seen must be called with mu held.
func (c *Cache) seen(rec progress.ReviewRecord) bool {
	return slices.ContainsFunc(c.history[rec.ItemID], func(h progress.ReviewRecord) bool {
		return h.ID == rec.ID
	})
}

func queued(ops []Op, recordID string) bool {
	return slices.ContainsFunc(ops, func(op Op) bool {
		return op.Kind == OpReview && op.Review.ID == recordID
	})
}
