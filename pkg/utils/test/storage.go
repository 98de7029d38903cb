package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/storage"
	"github.com/papercomputeco/cadence/pkg/storage/inmemory"
)

// ErrInjected is the transient failure returned by FlakyDriver.
var ErrInjected = errors.New("mock store: connection refused")

// FlakyDriver wraps an in-memory store and fails calls on demand. It stands
// in for a remote database that drops out.
type FlakyDriver struct {
	*inmemory.Driver

	mu       sync.Mutex
	down     bool
	failNext int
	calls    map[string]int
	hooks    map[string]func()

	// dropped counts calls per op that reach the store but report failure.
	dropped map[string]int
}

// NewFlakyDriver creates a healthy FlakyDriver.
func NewFlakyDriver() *FlakyDriver {
	return &FlakyDriver{
		Driver: inmemory.NewDriver(),
		calls:   make(map[string]int),
		hooks:   make(map[string]func()),
		dropped: make(map[string]int),
	}
}

// OnCall runs fn before every successful call to op, e.g. to simulate a
// write from another device racing this one.
func (f *FlakyDriver) OnCall(op string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[op] = fn
}

// SetDown makes every call fail until SetDown(false).
func (f *FlakyDriver) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// FailNext makes the next n calls fail.
func (f *FlakyDriver) FailNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// DropReplies lets the next n calls to op take effect and then fail, like a
// write that commits just before the connection is lost.
func (f *FlakyDriver) DropReplies(op string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped[op] = n
}

// dropReply reports whether the reply of a call to op that already took
// effect should be lost.
func (f *FlakyDriver) dropReply(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dropped[op] == 0 {
		return false
	}
	f.dropped[op]--
	return true
}

// Calls returns how many times op was invoked, failed calls included.
func (f *FlakyDriver) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FlakyDriver) check(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	err := ctx.Err()
	switch {
	case err != nil:
	case f.down:
		err = ErrInjected
	case f.failNext > 0:
		f.failNext--
		err = ErrInjected
	}
	hook := f.hooks[op]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}

func (f *FlakyDriver) Load(ctx context.Context, userID string) (*progress.Snapshot, error) {
	if err := f.check(ctx, "load"); err != nil {
		return nil, err
	}
	return f.Driver.Load(ctx, userID)
}

func (f *FlakyDriver) LoadItem(ctx context.Context, userID, itemID string) (progress.ItemProgress, error) {
	if err := f.check(ctx, "load_item"); err != nil {
		return progress.ItemProgress{}, err
	}
	return f.Driver.LoadItem(ctx, userID, itemID)
}

func (f *FlakyDriver) CompareAndSwap(ctx context.Context, userID string, expectedVersion uint64, p progress.ItemProgress) error {
	if err := f.check(ctx, "compare_and_swap"); err != nil {
		return err
	}
	err := f.Driver.CompareAndSwap(ctx, userID, expectedVersion, p)
	if f.dropReply("compare_and_swap") {
		return ErrInjected
	}
	return err
}

func (f *FlakyDriver) BatchCompareAndSwap(ctx context.Context, userID string, updates []storage.Update) ([]*storage.ConflictError, error) {
	if err := f.check(ctx, "batch_compare_and_swap"); err != nil {
		return nil, err
	}
	conflicts, err := f.Driver.BatchCompareAndSwap(ctx, userID, updates)
	if f.dropReply("batch_compare_and_swap") {
		return nil, ErrInjected
	}
	return conflicts, err
}

func (f *FlakyDriver) AppendReviews(ctx context.Context, userID string, records []progress.ReviewRecord) error {
	if err := f.check(ctx, "append_reviews"); err != nil {
		return err
	}
	return f.Driver.AppendReviews(ctx, userID, records)
}

func (f *FlakyDriver) RecentReviews(ctx context.Context, userID string, limit int) ([]progress.ReviewRecord, error) {
	if err := f.check(ctx, "recent_reviews"); err != nil {
		return nil, err
	}
	return f.Driver.RecentReviews(ctx, userID, limit)
}
