package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/cadence/pkg/eventstream"
)

// RecordingPublisher is a test eventstream publisher that keeps every event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.MasteryEvent

	// Fail causes PublishMastery to return this error.
	Fail error
}

// NewRecordingPublisher creates a new recording publisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (r *RecordingPublisher) PublishMastery(_ context.Context, event *eventstream.MasteryEvent) error {
	if event == nil {
		return eventstream.ErrNilMasteryEvent
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return r.Fail
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns the recorded events in publish order.
func (r *RecordingPublisher) Events() []*eventstream.MasteryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.MasteryEvent(nil), r.events...)
}

// EventsOfType returns the recorded events with the given type.
func (r *RecordingPublisher) EventsOfType(eventType string) []*eventstream.MasteryEvent {
	var out []*eventstream.MasteryEvent
	for _, e := range r.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *RecordingPublisher) Close() error {
	return nil
}
