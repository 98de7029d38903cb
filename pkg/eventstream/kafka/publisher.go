// Package kafka publishes mastery events to a Kafka topic. Messages are
// keyed by user id so a user's events stay ordered within one partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/cadence/pkg/eventstream"
	"github.com/papercomputeco/cadence/pkg/logger"
)

const defaultBatchTimeout = 50 * time.Millisecond

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// BatchTimeout bounds how long messages wait to fill a batch.
	BatchTimeout time.Duration

	Logger *slog.Logger
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements eventstream.Publisher on an asynchronous kafka-go
// writer: PublishMastery returns once the message is buffered and delivery
// failures are logged.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewPublisher creates a Kafka publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher: topic is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	log := cfg.Logger.With("topic", cfg.Topic)

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion: func(messages []kafkago.Message, err error) {
			if err != nil {
				log.Warn("mastery events not delivered",
					"count", len(messages),
					"error", err,
				)
			}
		},
	}

	return newPublisher(writer, cfg.Topic, log), nil
}

func newPublisher(w messageWriter, topic string, log *slog.Logger) *Publisher {
	return &Publisher{writer: w, topic: topic, logger: log}
}

// PublishMastery encodes the event and hands it to the writer.
func (p *Publisher) PublishMastery(ctx context.Context, event *eventstream.MasteryEvent) error {
	if event == nil {
		return eventstream.ErrNilMasteryEvent
	}

	msg, err := encode(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s for user %s: %w", event.EventType, event.UserID, err)
	}
	return nil
}

func encode(event *eventstream.MasteryEvent) (kafkago.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encoding mastery event: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	}, nil
}

// Close flushes buffered messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
