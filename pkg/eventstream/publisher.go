package eventstream

import "context"

// Publisher publishes mastery events to an event stream backend.
// Implementations must not block the caller on network I/O.
type Publisher interface {
	PublishMastery(ctx context.Context, event *MasteryEvent) error
	Close() error
}
