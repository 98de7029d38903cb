package session

import (
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
	"github.com/papercomputeco/cadence/pkg/scheduler"
)

// OpKind distinguishes the two mutations a session can queue for an item.
type OpKind int

const (
	OpEnroll OpKind = iota
	OpReview
)

func (k OpKind) String() string {
	if k == OpEnroll {
		return "enroll"
	}
	return "review"
}

// Op is one unpersisted mutation of an item. Ops are replayed in order on
// top of the last persisted state to produce the current state.
type Op struct {
	Kind OpKind

	// Item and At are set for OpEnroll.
	Item progress.LearningItem
	At   time.Time

	// Review is set for OpReview.
	Review progress.ReviewRecord
}

// Replay applies ops to base in order. hasBase reports whether base exists
// in the store; an enroll op on an existing item is a no-op, and review ops
// on an item that does not exist yet are skipped.
func Replay(s *scheduler.Scheduler, base progress.ItemProgress, hasBase bool, ops []Op) (progress.ItemProgress, bool) {
	current, exists := base, hasBase
	for _, op := range ops {
		switch op.Kind {
		case OpEnroll:
			if exists {
				continue
			}
			current = s.Enroll(op.Item, current.Version, op.At)
			exists = true
		case OpReview:
			if !exists {
				continue
			}
			current = s.Advance(current, op.Review.Outcome, op.Review.Timestamp)
		}
	}
	return current, exists
}

// Reviews returns the review records carried by ops.
func Reviews(ops []Op) []progress.ReviewRecord {
	var records []progress.ReviewRecord
	for _, op := range ops {
		if op.Kind == OpReview {
			records = append(records, op.Review)
		}
	}
	return records
}
