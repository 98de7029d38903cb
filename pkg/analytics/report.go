package analytics

import (
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
)

// Report bundles a learner's statistics.
type Report struct {
	UserID                 string                           `json:"user_id"`
	GeneratedAt            time.Time                        `json:"generated_at"`
	Window                 string                           `json:"window"`
	Reviews                int                              `json:"reviews"`
	Accuracy               float64                          `json:"accuracy"`
	Velocity               float64                          `json:"velocity_per_hour"`
	RetentionRate          float64                          `json:"retention_rate"`
	DifficultyProgression  float64                          `json:"difficulty_progression_per_day"`
	ImmediateEffectiveness float64                          `json:"immediate_effectiveness"`
	ClassDistribution      map[progress.DifficultyClass]int `json:"class_distribution"`
	DueNow                 int                              `json:"due_now"`

	// TimeToMastery is omitted when no projection is possible.
	TimeToMastery *string `json:"time_to_mastery,omitempty"`
}

// NewReport computes a report at now. Velocity, difficulty progression and
// immediate effectiveness only count records inside window; the other record
// statistics use every record given.
func NewReport(s *progress.Snapshot, records []progress.ReviewRecord, now time.Time, window time.Duration) Report {
	var recent []progress.ReviewRecord
	for _, rec := range records {
		if !rec.Timestamp.Before(now.Add(-window)) && !rec.Timestamp.After(now) {
			recent = append(recent, rec)
		}
	}

	initial, reviews := SplitFirstReviews(records)
	r := Report{
		UserID:                 s.UserID,
		GeneratedAt:            now,
		Window:                 window.String(),
		Reviews:                len(records),
		Accuracy:               Accuracy(records),
		Velocity:               Velocity(recent, window),
		RetentionRate:          RetentionRate(reviews, initial),
		DifficultyProgression:  DifficultyProgression(recent, window),
		ImmediateEffectiveness: ImmediateEffectiveness(recent),
		ClassDistribution:      ClassDistribution(s),
		DueNow:                 len(s.Due(now)),
	}

	if d, ok := EstimateMastery(records, DefaultMasteryThreshold); ok {
		str := d.Round(time.Second).String()
		r.TimeToMastery = &str
	}
	return r
}
