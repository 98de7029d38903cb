package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/cadence/pkg/progress"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeReviewRecorded is emitted when a session applies an outcome.
	EventTypeReviewRecorded = "cadence.review.recorded"

	// EventTypeProgressPersisted is emitted after an item reaches the store.
	EventTypeProgressPersisted = "cadence.progress.persisted"

	// EventTypeConflictResolved is emitted when a flush had to reconcile an
	// item with a write from another device.
	EventTypeConflictResolved = "cadence.conflict.resolved"
)

// MasteryEvent is a transport-neutral event payload describing a change in
// a learner's mastery of one item.
type MasteryEvent struct {
	SchemaVersion int                    `json:"schema_version"`
	EventType     string                 `json:"event_type"`
	EventID       string                 `json:"event_id"`
	EmittedAt     time.Time              `json:"emitted_at"`
	UserID        string                 `json:"user_id"`
	ItemID        string                 `json:"item_id"`
	Review        *progress.ReviewRecord `json:"review,omitempty"`
	Progress      progress.ItemProgress  `json:"progress"`

	// ServerWins is set on conflict events where the stored value was kept.
	ServerWins bool `json:"server_wins,omitempty"`
}

// NewMasteryEvent builds an event of eventType for p.
func NewMasteryEvent(eventType, userID string, p progress.ItemProgress, now time.Time) *MasteryEvent {
	return &MasteryEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     now,
		UserID:        userID,
		ItemID:        p.ItemID,
		Progress:      p,
	}
}
