// Package scheduler computes the next scheduling state of an item from a
// review outcome. It combines coarse difficulty-class stepping with a
// continuous ease-factor growth curve.
//
// A Scheduler holds only immutable parameters. Advance is a pure function of
// its arguments and is safe to call from any number of goroutines.
package scheduler

import (
	"fmt"
	"math"
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
)

// Scheduler advances ItemProgress according to its Params.
type Scheduler struct {
	params Params
}

// NewScheduler returns a Scheduler for params, with zero fields defaulted.
func NewScheduler(params Params) (*Scheduler, error) {
	p := params.withDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler params: %w", err)
	}
	return &Scheduler{params: p}, nil
}

// Default returns a Scheduler with DefaultParams.
func Default() *Scheduler {
	return &Scheduler{params: DefaultParams()}
}

// Params returns the effective parameters.
func (s *Scheduler) Params() Params {
	return s.params
}

// Enroll builds the initial progress for a new item. The item is due
// immediately and its version is one past base.
func (s *Scheduler) Enroll(item progress.LearningItem, base uint64, now time.Time) progress.ItemProgress {
	return progress.ItemProgress{
		ItemID:          item.ID,
		ContentRef:      item.ContentRef,
		DifficultyClass: progress.New,
		EaseFactor:      s.params.StartEase,
		DueAt:           now,
		Version:         base + 1,
	}
}

// Advance returns the progress that follows current after outcome at now.
// It panics on an invalid outcome: callers validate at their boundary.
func (s *Scheduler) Advance(current progress.ItemProgress, outcome progress.Outcome, now time.Time) progress.ItemProgress {
	if !outcome.Valid() {
		panic(fmt.Sprintf("scheduler: invalid outcome %q for item %q", outcome, current.ItemID))
	}

	next := current
	next.Version = current.Version + 1
	next.LastReviewedAt = now
	next.EaseFactor = s.nextEase(current.EaseFactor, outcome)

	if outcome.IsCorrect() {
		next.ConsecutiveCorrect = current.ConsecutiveCorrect + 1
	} else {
		next.ConsecutiveCorrect = 0
	}

	if current.DifficultyClass == progress.New {
		// The first review forces another near-term look before the growth
		// curve applies, and the item leaves the new bucket either way.
		next.DifficultyClass = progress.Learning
		next.Interval = s.params.NewItemInterval
		next.DueAt = now.Add(next.Interval)
		return next
	}

	switch outcome {
	case progress.Incorrect:
		next.DifficultyClass = current.DifficultyClass.Step(-1, progress.Learning)
		next.Interval = s.params.BaseInterval
		if current.Interval > 0 && current.Interval < s.params.BaseInterval {
			next.Interval = current.Interval
		}
	case progress.CorrectHard:
		next.Interval = s.grow(current.Interval, next.EaseFactor*s.params.HardFactor)
	case progress.CorrectEasy:
		next.DifficultyClass = current.DifficultyClass.Step(1, progress.Learning)
		next.Interval = s.grow(current.Interval, next.EaseFactor*s.params.EasyFactor)
	}

	next.DueAt = now.Add(next.Interval)
	return next
}

func (s *Scheduler) nextEase(ease float64, outcome progress.Outcome) float64 {
	if ease == 0 {
		ease = s.params.StartEase
	}

	switch outcome {
	case progress.Incorrect:
		ease -= s.params.EasePenalty
	case progress.CorrectEasy:
		ease += s.params.EaseBonus
	}

	// Round away float drift so repeated steps land on clean values.
	ease = math.Round(ease*1000) / 1000
	return math.Min(math.Max(ease, s.params.MinEase), s.params.MaxEase)
}

// grow multiplies the interval, starting from at least BaseInterval, and caps
// the result at MaxInterval.
func (s *Scheduler) grow(interval time.Duration, multiplier float64) time.Duration {
	base := max(interval, s.params.BaseInterval)
	grown := time.Duration(float64(base) * multiplier)
	if grown > s.params.MaxInterval || grown < 0 {
		return s.params.MaxInterval
	}
	return grown
}
