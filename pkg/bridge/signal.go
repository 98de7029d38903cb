package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/cadence/pkg/progress"
)

// ErrInvalidSignal is returned for signals with an unknown kind or missing
// identifiers.
var ErrInvalidSignal = errors.New("invalid learning signal")

// SignalKind is how the AI judged the learner's handling of an item.
type SignalKind string

const (
	Struggled SignalKind = "struggled"
	Hesitant  SignalKind = "hesitant"
	Fluent    SignalKind = "fluent"
)

// Outcome maps the signal onto the review outcome scale.
func (k SignalKind) Outcome() (progress.Outcome, bool) {
	switch k {
	case Struggled:
		return progress.Incorrect, true
	case Hesitant:
		return progress.CorrectHard, true
	case Fluent:
		return progress.CorrectEasy, true
	}
	return "", false
}

// Signal is a learning observation reported by the AI capability, e.g. "the
// user struggled explaining this word".
type Signal struct {
	UserID          string         `json:"user_id"`
	ItemID          string         `json:"item_id"`
	Kind            SignalKind     `json:"kind"`
	At              time.Time      `json:"at,omitzero"`
	ResponseLatency *time.Duration `json:"response_latency,omitempty"`
	Note            string         `json:"note,omitempty"`
}

// Fold converts s into a synthetic review record sourced from the AI layer.
// A zero At is left for the recorder to stamp.
func Fold(s Signal) (progress.ReviewRecord, error) {
	if s.UserID == "" || s.ItemID == "" {
		return progress.ReviewRecord{}, fmt.Errorf("%w: user and item are required", ErrInvalidSignal)
	}
	outcome, ok := s.Kind.Outcome()
	if !ok {
		return progress.ReviewRecord{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidSignal, s.Kind)
	}

	return progress.ReviewRecord{
		ID:              uuid.NewString(),
		UserID:          s.UserID,
		ItemID:          s.ItemID,
		Timestamp:       s.At,
		Outcome:         outcome,
		ResponseLatency: s.ResponseLatency,
		Source:          progress.SourceAI,
	}, nil
}
