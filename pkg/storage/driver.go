// Package storage defines the durable progress store boundary: per-user item
// progress guarded by optimistic version checks, plus the append-only review
// log.
package storage

import (
	"context"

	"github.com/papercomputeco/cadence/pkg/progress"
)

// Driver defines the interface for persisting and retrieving learner progress
// in a storage backend. Every write is a compare-and-swap on the item version:
// drivers never overwrite a newer version with an older one.
type Driver interface {
	// Load returns the full snapshot for a user. Returns NotFoundError when
	// the user has no stored items.
	Load(ctx context.Context, userID string) (*progress.Snapshot, error)

	// LoadItem returns the stored progress for a single item. Returns
	// NotFoundError when the item is not stored.
	LoadItem(ctx context.Context, userID, itemID string) (progress.ItemProgress, error)

	// CompareAndSwap writes p only if the stored version equals
	// expectedVersion. An expectedVersion of 0 means the item must not exist.
	// Returns *ConflictError otherwise.
	CompareAndSwap(ctx context.Context, userID string, expectedVersion uint64, p progress.ItemProgress) error

	// BatchCompareAndSwap applies each update with CompareAndSwap semantics.
	// Each item is atomic on its own; the returned conflicts name the updates
	// that were rejected. The error is reserved for I/O failures.
	BatchCompareAndSwap(ctx context.Context, userID string, updates []Update) ([]*ConflictError, error)

	// AppendReviews adds records to the user's review log. Records whose ID
	// is already stored are skipped, so replays are harmless.
	AppendReviews(ctx context.Context, userID string, records []progress.ReviewRecord) error

	// RecentReviews returns up to limit records for a user, newest first.
	RecentReviews(ctx context.Context, userID string, limit int) ([]progress.ReviewRecord, error)

	// Close closes the store and releases any resources.
	Close() error
}

// Update is one entry of a batch write.
type Update struct {
	ExpectedVersion uint64
	Progress        progress.ItemProgress
}

// Import seeds a store with a snapshot. It is insert-only: items that already
// exist are reported as conflicts and left untouched.
func Import(ctx context.Context, d Driver, snapshot *progress.Snapshot) ([]*ConflictError, error) {
	updates := make([]Update, 0, snapshot.Len())
	for _, p := range snapshot.Items {
		updates = append(updates, Update{ExpectedVersion: 0, Progress: p})
	}
	return d.BatchCompareAndSwap(ctx, snapshot.UserID, updates)
}
