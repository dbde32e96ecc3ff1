package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jnst/theshop-core/internal/model"
)

// KafkaOptions configures a KafkaPublisher.
type KafkaOptions struct {
	Brokers      []string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements Publisher using segmentio/kafka-go.
type KafkaPublisher struct {
	writer   messageWriter
	timeout  time.Duration
	reporter *errorReporter
}

// NewKafkaPublisher creates a producer that writes each event to the topic
// derived from its name. Call Close when shutting down.
func NewKafkaPublisher(opts KafkaOptions) (*KafkaPublisher, error) {
	reporter := newErrorReporter(opts.Logger)

	if len(opts.Brokers) == 0 {
		err := fmt.Errorf("kafka: no brokers: %w", errNotConfigured)
		reporter.report(err)

		return nil, err
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(opts.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            opts.MaxRetries + 1,
		WriteBackoffMin:        opts.RetryBackoff,
		WriteBackoffMax:        2 * opts.RetryBackoff,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            opts.Timeout,
		WriteTimeout:           opts.Timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			DialTimeout: opts.Timeout,
			MetadataTTL: time.Minute,
		},
	}

	return newKafkaPublisher(writer, opts.Timeout, reporter), nil
}

func newKafkaPublisher(w messageWriter, timeout time.Duration, reporter *errorReporter) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &KafkaPublisher{writer: w, timeout: timeout, reporter: reporter}
}

// Publish serializes the event as JSON and writes it keyed by the event id.
// The write is bounded by the configured timeout.
func (p *KafkaPublisher) Publish(ctx context.Context, event model.IntegrationEvent) error {
	topic := TopicName(event.EventName())
	id := event.EventID().String()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event.EventName(), err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Topic: topic,
		Key:   []byte(id),
		Value: payload,
		Headers: []kafka.Header{
			{Key: FieldEventType, Value: []byte(event.EventName())},
		},
	})
	if err != nil {
		p.reporter.report(err, slog.String("topic", topic), slog.String("event_id", id))

		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}

	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
