// Package analytics derives learning statistics from review records and
// progress snapshots. Every function is pure.
package analytics

import (
	"slices"
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
)

const (
	// DefaultMasteryThreshold is the rolling accuracy considered mastery.
	DefaultMasteryThreshold = 0.85

	// masteryWindow is the number of most recent reviews in the rolling
	// accuracy.
	masteryWindow = 10

	// LatencyBaseline is the response time at which an answer earns no
	// speed credit.
	LatencyBaseline = 30 * time.Second

	// accuracyWeight and speedWeight blend ImmediateEffectiveness.
	accuracyWeight = 0.625
	speedWeight    = 0.375
)

// Velocity returns correct answers per hour over window.
func Velocity(records []progress.ReviewRecord, window time.Duration) float64 {
	if len(records) == 0 || window <= 0 {
		return 0
	}
	return float64(countCorrect(records)) / window.Hours()
}

// RetentionRate compares accuracy on later reviews with accuracy on first
// exposures. It is capped at 1 and is 0 when either side is empty or the
// initial accuracy is 0.
func RetentionRate(reviews, initial []progress.ReviewRecord) float64 {
	if len(reviews) == 0 || len(initial) == 0 {
		return 0
	}
	initialAccuracy := Accuracy(initial)
	if initialAccuracy == 0 {
		return 0
	}
	return min(Accuracy(reviews)/initialAccuracy, 1)
}

// SplitFirstReviews separates each item's first review from the rest.
// Records are ordered by timestamp first.
func SplitFirstReviews(records []progress.ReviewRecord) (initial, reviews []progress.ReviewRecord) {
	seen := make(map[string]struct{})
	for _, rec := range chronological(records) {
		if _, ok := seen[rec.ItemID]; ok {
			reviews = append(reviews, rec)
			continue
		}
		seen[rec.ItemID] = struct{}{}
		initial = append(initial, rec)
	}
	return initial, reviews
}

// ClassDistribution counts the snapshot's items per difficulty class.
func ClassDistribution(s *progress.Snapshot) map[progress.DifficultyClass]int {
	dist := map[progress.DifficultyClass]int{
		progress.New:      0,
		progress.Learning: 0,
		progress.Young:    0,
		progress.Mature:   0,
	}
	for _, p := range s.Items {
		dist[p.DifficultyClass]++
	}
	return dist
}

// EstimateMastery projects how long until the rolling accuracy of the last
// reviews reaches threshold, assuming accuracy keeps growing at its average
// rate since the first record. It returns 0, true when the threshold is
// already met and false when no projection is possible.
func EstimateMastery(records []progress.ReviewRecord, threshold float64) (time.Duration, bool) {
	if len(records) == 0 {
		return 0, false
	}
	ordered := chronological(records)

	recent := ordered[max(0, len(ordered)-masteryWindow):]
	accuracy := Accuracy(recent)
	if accuracy >= threshold {
		return 0, true
	}
	if len(ordered) < 2 {
		return 0, false
	}

	elapsed := ordered[len(ordered)-1].Timestamp.Sub(ordered[0].Timestamp)
	if elapsed <= 0 || accuracy == 0 {
		return 0, false
	}

	rate := accuracy / elapsed.Seconds()
	remaining := (threshold - accuracy) / rate
	return time.Duration(remaining * float64(time.Second)), true
}

// DifficultyProgression returns the net difficulty class steps per day the
// records show over timeframe. Each item contributes the class after its
// latest record minus the class after its earliest one; records without a
// resulting class are ignored.
func DifficultyProgression(records []progress.ReviewRecord, timeframe time.Duration) float64 {
	days := timeframe.Hours() / 24
	if days <= 0 {
		return 0
	}

	first := make(map[string]progress.DifficultyClass)
	last := make(map[string]progress.DifficultyClass)
	for _, rec := range chronological(records) {
		if rec.ResultingClass == progress.New {
			continue
		}
		if _, ok := first[rec.ItemID]; !ok {
			first[rec.ItemID] = rec.ResultingClass
		}
		last[rec.ItemID] = rec.ResultingClass
	}

	steps := 0
	for id, start := range first {
		steps += int(last[id]) - int(start)
	}
	return float64(steps) / days
}

// ImmediateEffectiveness scores a batch of answers in [0, 1], weighing
// accuracy against how quickly they came. A response at or beyond
// LatencyBaseline earns no speed credit. Without any recorded latency the
// score is the accuracy alone.
func ImmediateEffectiveness(records []progress.ReviewRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	accuracy := Accuracy(records)

	var total time.Duration
	timed := 0
	for _, rec := range records {
		if rec.ResponseLatency != nil {
			total += *rec.ResponseLatency
			timed++
		}
	}
	if timed == 0 {
		return accuracy
	}

	mean := total / time.Duration(timed)
	speed := max(0, 1-mean.Seconds()/LatencyBaseline.Seconds())
	return accuracy*accuracyWeight + speed*speedWeight
}

// Accuracy is the share of correct outcomes in records.
func Accuracy(records []progress.ReviewRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	return float64(countCorrect(records)) / float64(len(records))
}

func countCorrect(records []progress.ReviewRecord) int {
	n := 0
	for _, rec := range records {
		if rec.Outcome.IsCorrect() {
			n++
		}
	}
	return n
}

func chronological(records []progress.ReviewRecord) []progress.ReviewRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b progress.ReviewRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}
