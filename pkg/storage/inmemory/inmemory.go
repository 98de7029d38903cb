// Package inmemory provides a map-backed progress store for tests and
// single-process deployments.
package inmemory

import (
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding every map below
	mu sync.RWMutex

	// items maps user id -> item id -> stored progress
	items map[string]map[string]progress.ItemProgress

	// reviews is the per-user review log in append order
	reviews map[string][]progress.ReviewRecord

	// reviewIDs dedupes appends by record id
	reviewIDs map[string]struct{}
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		items:     make(map[string]map[string]progress.ItemProgress),
		reviews:   make(map[string][]progress.ReviewRecord),
		reviewIDs: make(map[string]struct{}),
	}
}

// Load returns a copy of every stored item for the user.
func (d *Driver) Load(_ context.Context, userID string) (*progress.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	items, ok := d.items[userID]
	if !ok || len(items) == 0 {
		return nil, storage.NotFoundError{UserID: userID}
	}

	snapshot := progress.NewSnapshot(userID)
	for _, p := range items {
		snapshot.Put(p)
	}
	return snapshot, nil
}

// LoadItem returns the stored progress for one item.
func (d *Driver) LoadItem(_ context.Context, userID, itemID string) (progress.ItemProgress, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.items[userID][itemID]
	if !ok {
		return progress.ItemProgress{}, storage.NotFoundError{UserID: userID, ItemID: itemID}
	}
	return p, nil
}

// CompareAndSwap writes p when the stored version equals expectedVersion.
func (d *Driver) CompareAndSwap(_ context.Context, userID string, expectedVersion uint64, p progress.ItemProgress) error {
	if err := storage.ValidateWrite(userID, expectedVersion, p); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if conflict := d.swap(userID, expectedVersion, p); conflict != nil {
		return conflict
	}
	return nil
}

// BatchCompareAndSwap applies every update under a single lock.
func (d *Driver) BatchCompareAndSwap(_ context.Context, userID string, updates []storage.Update) ([]*storage.ConflictError, error) {
	for _, u := range updates {
		if err := storage.ValidateWrite(userID, u.ExpectedVersion, u.Progress); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var conflicts []*storage.ConflictError
	for _, u := range updates {
		if conflict := d.swap(userID, u.ExpectedVersion, u.Progress); conflict != nil {
			conflicts = append(conflicts, conflict)
		}
	}
	return conflicts, nil
}

// swap must be called with mu held.
func (d *Driver) swap(userID string, expectedVersion uint64, p progress.ItemProgress) *storage.ConflictError {
	items, ok := d.items[userID]
	if !ok {
		items = make(map[string]progress.ItemProgress)
		d.items[userID] = items
	}

	var actual uint64
	if stored, exists := items[p.ItemID]; exists {
		actual = stored.Version
	}
	if actual != expectedVersion {
		return &storage.ConflictError{
			UserID:   userID,
			ItemID:   p.ItemID,
			Expected: expectedVersion,
			Actual:   actual,
		}
	}

	items[p.ItemID] = p
	return nil
}

// AppendReviews adds records not already present to the user's log.
func (d *Driver) AppendReviews(_ context.Context, userID string, records []progress.ReviewRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rec := range records {
		if _, seen := d.reviewIDs[rec.ID]; seen {
			continue
		}
		d.reviewIDs[rec.ID] = struct{}{}
		d.reviews[userID] = append(d.reviews[userID], rec)
	}
	return nil
}

// RecentReviews returns up to limit records, newest first.
func (d *Driver) RecentReviews(_ context.Context, userID string, limit int) ([]progress.ReviewRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := slices.Clone(d.reviews[userID])
	slices.SortStableFunc(log, func(a, b progress.ReviewRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(log) > limit {
		log = log[:limit]
	}
	return log, nil
}

// Close is a no-op for the in-memory store.
func (d *Driver) Close() error {
	return nil
}
