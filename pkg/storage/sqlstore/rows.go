package sqlstore

import (
	"database/sql"
	"time"

	"github.com/papercomputeco/cadence/pkg/progress"
)

type progressRow struct {
	UserID             string  `db:"user_id"`
	ItemID             string  `db:"item_id"`
	ContentRef         string  `db:"content_ref"`
	DifficultyClass    string  `db:"difficulty_class"`
	IntervalNanos      int64   `db:"interval_ns"`
	EaseFactor         float64 `db:"ease_factor"`
	ConsecutiveCorrect int64   `db:"consecutive_correct"`
	DueAt              int64   `db:"due_at"`
	LastReviewedAt     int64   `db:"last_reviewed_at"`
	Version            int64   `db:"version"`
}

func fromProgress(userID string, p progress.ItemProgress) progressRow {
	return progressRow{
		UserID:             userID,
		ItemID:             p.ItemID,
		ContentRef:         p.ContentRef,
		DifficultyClass:    p.DifficultyClass.String(),
		IntervalNanos:      int64(p.Interval),
		EaseFactor:         p.EaseFactor,
		ConsecutiveCorrect: int64(p.ConsecutiveCorrect),
		DueAt:              toNanos(p.DueAt),
		LastReviewedAt:     toNanos(p.LastReviewedAt),
		Version:            int64(p.Version),
	}
}

func (r progressRow) toProgress() (progress.ItemProgress, error) {
	class, err := progress.ParseDifficultyClass(r.DifficultyClass)
	if err != nil {
		return progress.ItemProgress{}, err
	}
	return progress.ItemProgress{
		ItemID:             r.ItemID,
		ContentRef:         r.ContentRef,
		DifficultyClass:    class,
		Interval:           time.Duration(r.IntervalNanos),
		EaseFactor:         r.EaseFactor,
		ConsecutiveCorrect: int(r.ConsecutiveCorrect),
		DueAt:              fromNanos(r.DueAt),
		LastReviewedAt:     fromNanos(r.LastReviewedAt),
		Version:            uint64(r.Version),
	}, nil
}

type reviewRow struct {
	ID             string        `db:"id"`
	UserID         string        `db:"user_id"`
	ItemID         string        `db:"item_id"`
	ReviewedAt     int64         `db:"reviewed_at"`
	Outcome        string        `db:"outcome"`
	LatencyNanos   sql.NullInt64 `db:"latency_ns"`
	Source         string        `db:"source"`
	ResultingClass string        `db:"resulting_class"`
}

func fromReview(userID string, rec progress.ReviewRecord) reviewRow {
	row := reviewRow{
		ID:         rec.ID,
		UserID:     userID,
		ItemID:     rec.ItemID,
		ReviewedAt: toNanos(rec.Timestamp),
		Outcome:    string(rec.Outcome),
		Source:     string(rec.Source),
	}
	if rec.ResponseLatency != nil {
		row.LatencyNanos = sql.NullInt64{Int64: int64(*rec.ResponseLatency), Valid: true}
	}
	if rec.ResultingClass != progress.New {
		row.ResultingClass = rec.ResultingClass.String()
	}
	return row
}

func (r reviewRow) toReview() progress.ReviewRecord {
	rec := progress.ReviewRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		ItemID:    r.ItemID,
		Timestamp: fromNanos(r.ReviewedAt),
		Outcome:   progress.Outcome(r.Outcome),
		Source:    progress.Source(r.Source),
	}
	if r.LatencyNanos.Valid {
		latency := time.Duration(r.LatencyNanos.Int64)
		rec.ResponseLatency = &latency
	}
	if class, err := progress.ParseDifficultyClass(r.ResultingClass); err == nil {
		rec.ResultingClass = class
	}
	return rec
}

// toNanos maps the zero time to 0 so "never" survives the round trip.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
