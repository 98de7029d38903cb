package nop

import (
	"context"

	"github.com/papercomputeco/cadence/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishMastery validates input and otherwise does nothing.
func (p *Publisher) PublishMastery(_ context.Context, event *eventstream.MasteryEvent) error {
	if event == nil {
		return eventstream.ErrNilMasteryEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
