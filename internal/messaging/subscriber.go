package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/rueidis"
	"github.com/segmentio/kafka-go"
)

const (
	streamBlockTimeout = time.Second
	streamReadCount    = 10
	errorRetryDelay    = time.Second
)

// Message is one integration event read from the broker.
type Message struct {
	ID        string
	Topic     string
	Key       string
	EventType string
	Payload   []byte
}

// HandlerFunc processes a message. A returned error leaves the message
// unacknowledged where the broker supports it.
type HandlerFunc func(ctx context.Context, msg Message) error

// Subscriber delivers the messages of one topic to a handler until ctx is
// cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handle HandlerFunc) error
}

// StreamSubscriber reads topics written by StreamPublisher through a Redis
// consumer group.
type StreamSubscriber struct {
	client   rueidis.Client
	group    string
	consumer string
	log      *slog.Logger
}

// NewStreamSubscriber creates a consumer-group reader.
func NewStreamSubscriber(client rueidis.Client, group, consumer string, log *slog.Logger) *StreamSubscriber {
	if log == nil {
		log = slog.Default()
	}

	return &StreamSubscriber{client: client, group: group, consumer: consumer, log: log}
}

// Subscribe creates the consumer group if needed and processes new entries,
// acknowledging those handled without error.
func (s *StreamSubscriber) Subscribe(ctx context.Context, topic string, handle HandlerFunc) error {
	log := s.log.With(slog.String("stream", topic), slog.String("group", s.group))

	create := s.client.B().XgroupCreate().Key(topic).Group(s.group).Id("0").Mkstream().Build()
	if err := s.client.Do(ctx, create).Error(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group on %s: %w", topic, err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		entries, err := s.read(ctx, topic)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			log.Error("error consuming messages", slog.String("error", err.Error()))

			if !sleepContext(ctx, errorRetryDelay) {
				return nil
			}

			continue
		}

		for _, entry := range entries {
			msg := Message{
				ID:        entry.ID,
				Topic:     topic,
				Key:       entry.FieldValues[FieldKey],
				EventType: entry.FieldValues[FieldEventType],
				Payload:   []byte(entry.FieldValues[FieldPayload]),
			}

			if err := handle(ctx, msg); err != nil {
				log.Error("failed to process message",
					slog.String("message_id", entry.ID),
					slog.String("error", err.Error()),
				)

				continue
			}

			ack := s.client.B().Xack().Key(topic).Group(s.group).Id(entry.ID).Build()
			if err := s.client.Do(ctx, ack).Error(); err != nil {
				log.Error("failed to ACK message", slog.String("message_id", entry.ID), slog.String("error", err.Error()))
			}
		}
	}
}

func (s *StreamSubscriber) read(ctx context.Context, topic string) ([]rueidis.XRangeEntry, error) {
	cmd := s.client.B().Xreadgroup().Group(s.group, s.consumer).
		Count(streamReadCount).
		Block(streamBlockTimeout.Milliseconds()).
		Streams().
		Key(topic).
		Id(">").
		Build()

	streams, err := s.client.Do(ctx, cmd).AsXRead()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}

		return nil, err
	}

	return streams[topic], nil
}

// KafkaSubscriber reads topics through a Kafka consumer group.
type KafkaSubscriber struct {
	brokers []string
	group   string
	log     *slog.Logger
}

// NewKafkaSubscriber creates a consumer-group reader.
func NewKafkaSubscriber(brokers []string, group string, log *slog.Logger) *KafkaSubscriber {
	if log == nil {
		log = slog.Default()
	}

	return &KafkaSubscriber{brokers: brokers, group: group, log: log}
}

// Subscribe processes messages of topic and commits their offsets. Messages
// whose handler fails are logged and committed as well.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, topic string, handle HandlerFunc) error {
	log := s.log.With(slog.String("topic", topic), slog.String("group", s.group))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: s.brokers,
		GroupID: s.group,
		Topic:   topic,
	})
	defer reader.Close()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}

			log.Error("error consuming messages", slog.String("error", err.Error()))

			if !sleepContext(ctx, errorRetryDelay) {
				return nil
			}

			continue
		}

		msg := Message{
			ID:      fmt.Sprintf("%d/%d", m.Partition, m.Offset),
			Topic:   m.Topic,
			Key:     string(m.Key),
			Payload: m.Value,
		}

		for _, h := range m.Headers {
			if h.Key == FieldEventType {
				msg.EventType = string(h.Value)
			}
		}

		if err := handle(ctx, msg); err != nil {
			log.Error("failed to process message", slog.String("message_id", msg.ID), slog.String("error", err.Error()))
		}

		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			log.Error("failed to commit message", slog.String("message_id", msg.ID), slog.String("error", err.Error()))
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
