package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/cadence/pkg/eventstream"
	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/session"
	"github.com/papercomputeco/cadence/pkg/storage"
)

// flush writes every dirty item of sess with one batch compare-and-swap and
// reconciles the items that conflicted. It is serialized per session. On a
// store failure the dirty state stays queued for the next attempt.
func (c *Coordinator) flush(ctx context.Context, sess *userSession) error {
	sess.flushMu.Lock()
	defer sess.flushMu.Unlock()

	if sess.transition(StateActive, StateFlushing) {
		defer sess.transition(StateFlushing, StateActive)
	}

	start := time.Now()
	batches := sess.cache.Pending()

	var firstErr error
	if len(batches) > 0 {
		firstErr = c.writeBatches(ctx, sess, batches)
	}

	if err := c.appendUnlogged(ctx, sess); err != nil && firstErr == nil {
		firstErr = err
	}

	if len(batches) > 0 {
		c.logger.Debug("session flushed",
			"user_id", sess.userID,
			"items", len(batches),
			"remaining_ops", sess.cache.PendingOps(),
			"duration", time.Since(start),
			"error", firstErr,
		)
	}
	return firstErr
}

func (c *Coordinator) writeBatches(ctx context.Context, sess *userSession, batches []session.Batch) error {
	updates := make([]storage.Update, len(batches))
	for i, b := range batches {
		updates[i] = storage.Update{ExpectedVersion: b.ExpectedVersion, Progress: b.Progress}
	}

	conflicts, err := c.store.BatchCompareAndSwap(ctx, sess.userID, updates)
	if err != nil {
		return fmt.Errorf("flushing %d item(s) for %s: %w", len(batches), sess.userID, err)
	}

	conflicted := make(map[string]*storage.ConflictError, len(conflicts))
	for _, ce := range conflicts {
		conflicted[ce.ItemID] = ce
	}

	var firstErr error
	for _, b := range batches {
		if _, ok := conflicted[b.ItemID]; !ok {
			sess.cache.Persisted(b.ItemID, b.Progress, len(b.Ops))
			sess.addUnlogged(session.Reviews(b.Ops))
			c.publish(ctx, eventstream.NewMasteryEvent(eventstream.EventTypeProgressPersisted, sess.userID, b.Progress, c.config.Now()))
			continue
		}

		if err := c.resolve(ctx, sess, b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolve reconciles a batch whose write conflicted with another device. The
// pending ops are replayed on the freshly stored state and written once
// more; if that write conflicts too, the stored value wins and the batch's
// ops are dropped.
func (c *Coordinator) resolve(ctx context.Context, sess *userSession, b session.Batch) error {
	log := c.logger.With("user_id", sess.userID, "item_id", b.ItemID)

	stored, err := c.store.LoadItem(ctx, sess.userID, b.ItemID)
	exists := true
	if storage.IsNotFound(err) {
		exists = false
	} else if err != nil {
		return fmt.Errorf("reloading item %s for %s: %w", b.ItemID, sess.userID, err)
	}

	// A retried write can land and still report a conflict.
	if exists && sameState(stored, b.Progress) {
		sess.cache.Persisted(b.ItemID, stored, len(b.Ops))
		sess.addUnlogged(session.Reviews(b.Ops))
		return nil
	}

	replayed, ok := session.Replay(c.scheduler.Load(), stored, exists, b.Ops)
	if !ok {
		// Nothing stored and nothing to create: write our state as new.
		replayed = b.Progress
	}
	if exists && replayed.Version == stored.Version {
		// Every op was a no-op on the stored state, e.g. an enroll of an item
		// another device created first.
		sess.cache.Persisted(b.ItemID, stored, len(b.Ops))
		return nil
	}

	expected := stored.Version
	if !exists {
		expected = 0
	}

	err = c.store.CompareAndSwap(ctx, sess.userID, expected, replayed)
	switch {
	case err == nil:
		sess.cache.Persisted(b.ItemID, replayed, len(b.Ops))
		sess.addUnlogged(session.Reviews(b.Ops))
		log.Info("version conflict resolved by replay",
			"stored_version", stored.Version,
			"version", replayed.Version,
			"replayed_ops", len(b.Ops),
		)
		c.publish(ctx, eventstream.NewMasteryEvent(eventstream.EventTypeConflictResolved, sess.userID, replayed, c.config.Now()))
		return nil

	case storage.IsConflict(err):
		winner, loadErr := c.store.LoadItem(ctx, sess.userID, b.ItemID)
		if loadErr != nil {
			return fmt.Errorf("reloading item %s for %s: %w", b.ItemID, sess.userID, loadErr)
		}
		sess.cache.Persisted(b.ItemID, winner, len(b.Ops))
		log.Warn("repeated version conflict, stored value wins",
			"version", winner.Version,
			"dropped_ops", len(b.Ops),
		)
		event := eventstream.NewMasteryEvent(eventstream.EventTypeConflictResolved, sess.userID, winner, c.config.Now())
		event.ServerWins = true
		c.publish(ctx, event)
		return nil

	default:
		return fmt.Errorf("rewriting item %s for %s: %w", b.ItemID, sess.userID, err)
	}
}

// appendUnlogged appends review records whose progress already landed.
func (c *Coordinator) appendUnlogged(ctx context.Context, sess *userSession) error {
	records := sess.takeUnlogged()
	if len(records) == 0 {
		return nil
	}

	if err := c.store.AppendReviews(ctx, sess.userID, records); err != nil {
		sess.addUnlogged(records)
		return fmt.Errorf("appending %d review(s) for %s: %w", len(records), sess.userID, err)
	}
	return nil
}

func sameState(a, b progress.ItemProgress) bool {
	return a.Version == b.Version &&
		a.DifficultyClass == b.DifficultyClass &&
		a.Interval == b.Interval &&
		a.EaseFactor == b.EaseFactor &&
		a.DueAt.Equal(b.DueAt)
}
