package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/cadence/pkg/eventstream"
	"github.com/papercomputeco/cadence/pkg/logger"
	"github.com/papercomputeco/cadence/pkg/progress"
)

var _ eventstream.Publisher = (*Publisher)(nil)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer *fakeWriter
		pub    *Publisher
		event  *eventstream.MasteryEvent
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		pub = newPublisher(writer, "mastery", logger.Nop())
		event = eventstream.NewMasteryEvent(
			eventstream.EventTypeProgressPersisted,
			"mei",
			progress.ItemProgress{ItemID: "ni-hao", Version: 4},
			time.Unix(1735689600, 0).UTC(),
		)
	})

	It("validates its configuration", func() {
		_, err := NewPublisher(Config{Topic: "mastery"})
		Expect(err).To(MatchError(ContainSubstring("broker")))

		_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(MatchError(ContainSubstring("topic")))
	})

	It("keys messages by user and carries the event type header", func() {
		Expect(pub.PublishMastery(context.Background(), event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))

		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("mei"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{
			Key:   "event_type",
			Value: []byte(eventstream.EventTypeProgressPersisted),
		}))

		var decoded eventstream.MasteryEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Progress.Version).To(Equal(uint64(4)))
	})

	It("rejects nil events", func() {
		Expect(pub.PublishMastery(context.Background(), nil)).To(MatchError(eventstream.ErrNilMasteryEvent))
		Expect(writer.messages).To(BeEmpty())
	})

	It("wraps writer failures", func() {
		writer.err = errors.New("broker gone")
		err := pub.PublishMastery(context.Background(), event)
		Expect(err).To(MatchError(ContainSubstring("broker gone")))
	})

	It("closes the writer", func() {
		Expect(pub.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
