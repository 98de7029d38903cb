// Package progress defines the scheduling data model shared by every layer of
// cadence: learning items, review outcomes, per-item scheduling state and the
// per-user snapshot that the store, session cache and AI bridge exchange.
package progress

import (
	"encoding/json"
	"fmt"
	"time"
)

// DifficultyClass is the coarse, Leitner-style bucket an item sits in.
// Classes are ordered: New < Learning < Young < Mature.
type DifficultyClass int

const (
	New DifficultyClass = iota
	Learning
	Young
	Mature
)

var classNames = [...]string{"new", "learning", "young", "mature"}

func (c DifficultyClass) String() string {
	if c < New || c > Mature {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

// Valid reports whether c is one of the four known classes.
func (c DifficultyClass) Valid() bool {
	return c >= New && c <= Mature
}

// Step moves the class by delta, clamped to [floor, Mature].
func (c DifficultyClass) Step(delta int, floor DifficultyClass) DifficultyClass {
	next := c + DifficultyClass(delta)
	if next < floor {
		return floor
	}
	if next > Mature {
		return Mature
	}
	return next
}

// ParseDifficultyClass parses the string form of a class.
func ParseDifficultyClass(s string) (DifficultyClass, error) {
	for i, name := range classNames {
		if name == s {
			return DifficultyClass(i), nil
		}
	}
	return New, fmt.Errorf("unknown difficulty class %q", s)
}

func (c DifficultyClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid difficulty class %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *DifficultyClass) UnmarshalText(b []byte) error {
	parsed, err := ParseDifficultyClass(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Outcome is the categorical result of presenting an item to a user.
type Outcome string

const (
	CorrectEasy Outcome = "correct-easy"
	CorrectHard Outcome = "correct-hard"
	Incorrect   Outcome = "incorrect"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case CorrectEasy, CorrectHard, Incorrect:
		return true
	}
	return false
}

// IsCorrect reports whether o is one of the correct outcomes.
func (o Outcome) IsCorrect() bool {
	return o == CorrectEasy || o == CorrectHard
}

// Source identifies which layer produced a review record.
type Source string

const (
	SourceSession Source = "session"
	SourceAI      Source = "ai"
)

// LearningItem identifies a vocabulary or phrase unit. ContentRef points into
// an external content store that cadence does not own.
type LearningItem struct {
	ID              string          `json:"item_id"`
	DifficultyClass DifficultyClass `json:"difficulty_class"`
	ContentRef      string          `json:"content_ref,omitempty"`
}

// ReviewRecord is one immutable outcome of presenting an item to a user.
// The ID makes appends to the review log idempotent.
type ReviewRecord struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	ItemID          string         `json:"item_id"`
	Timestamp       time.Time      `json:"timestamp"`
	Outcome         Outcome        `json:"outcome"`
	ResponseLatency *time.Duration `json:"response_latency,omitempty"`
	Source          Source         `json:"source,omitempty"`

	// ResultingClass is the class the review moved the item into. A review
	// never leaves an item in New, so New means it was not captured.
	ResultingClass DifficultyClass `json:"resulting_class,omitempty"`
}

// ItemProgress is the authoritative scheduling state for one (user, item).
type ItemProgress struct {
	ItemID             string          `json:"item_id"`
	ContentRef         string          `json:"content_ref,omitempty"`
	DifficultyClass    DifficultyClass `json:"difficulty_class"`
	Interval           time.Duration   `json:"interval"`
	EaseFactor         float64         `json:"ease_factor"`
	ConsecutiveCorrect int             `json:"consecutive_correct"`
	DueAt              time.Time       `json:"due_at"`
	Version            uint64          `json:"version"`
	LastReviewedAt     time.Time       `json:"last_reviewed_at,omitzero"`
}

// Reviewed reports whether the item has been reviewed at least once.
func (p ItemProgress) Reviewed() bool {
	return !p.LastReviewedAt.IsZero()
}

// Overdue returns how long past its due time the item is at now, or zero.
func (p ItemProgress) Overdue(now time.Time) time.Duration {
	if d := now.Sub(p.DueAt); d > 0 {
		return d
	}
	return 0
}

// itemProgressJSON renders Interval in a human readable form on the wire.
type itemProgressJSON struct {
	ItemID             string          `json:"item_id"`
	ContentRef         string          `json:"content_ref,omitempty"`
	DifficultyClass    DifficultyClass `json:"difficulty_class"`
	Interval           string          `json:"interval"`
	EaseFactor         float64         `json:"ease_factor"`
	ConsecutiveCorrect int             `json:"consecutive_correct"`
	DueAt              time.Time       `json:"due_at"`
	Version            uint64          `json:"version"`
	LastReviewedAt     time.Time       `json:"last_reviewed_at,omitzero"`
}

func (p ItemProgress) MarshalJSON() ([]byte, error) {
	return json.Marshal(itemProgressJSON{
		ItemID:             p.ItemID,
		ContentRef:         p.ContentRef,
		DifficultyClass:    p.DifficultyClass,
		Interval:           p.Interval.String(),
		EaseFactor:         p.EaseFactor,
		ConsecutiveCorrect: p.ConsecutiveCorrect,
		DueAt:              p.DueAt,
		Version:            p.Version,
		LastReviewedAt:     p.LastReviewedAt,
	})
}

func (p *ItemProgress) UnmarshalJSON(b []byte) error {
	var raw itemProgressJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var interval time.Duration
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("parsing interval: %w", err)
		}
		interval = d
	}

	*p = ItemProgress{
		ItemID:             raw.ItemID,
		ContentRef:         raw.ContentRef,
		DifficultyClass:    raw.DifficultyClass,
		Interval:           interval,
		EaseFactor:         raw.EaseFactor,
		ConsecutiveCorrect: raw.ConsecutiveCorrect,
		DueAt:              raw.DueAt,
		Version:            raw.Version,
		LastReviewedAt:     raw.LastReviewedAt,
	}
	return nil
}
