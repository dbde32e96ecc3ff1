package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/rueidis"

	"github.com/jnst/theshop-core/internal/model"
)

// Stream entry fields written by StreamPublisher.
const (
	FieldKey       = "key"
	FieldEventType = "event_type"
	FieldPayload   = "payload"
)

// StreamPublisher implements Publisher on Redis Streams. Each topic is a
// stream and each event one XADD entry.
type StreamPublisher struct {
	client   rueidis.Client
	timeout  time.Duration
	reporter *errorReporter
}

// NewStreamPublisher creates a Redis Streams publisher.
func NewStreamPublisher(client rueidis.Client, timeout time.Duration, log *slog.Logger) *StreamPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &StreamPublisher{client: client, timeout: timeout, reporter: newErrorReporter(log)}
}

// Publish appends the event to the stream named after its topic.
func (p *StreamPublisher) Publish(ctx context.Context, event model.IntegrationEvent) error {
	topic := TopicName(event.EventName())
	id := event.EventID().String()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event.EventName(), err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := p.client.B().Xadd().Key(topic).Id("*").
		FieldValue().FieldValue(FieldKey, id).
		FieldValue(FieldEventType, event.EventName()).
		FieldValue(FieldPayload, string(payload)).
		Build()

	if err := p.client.Do(writeCtx, cmd).Error(); err != nil {
		p.reporter.report(err, slog.String("topic", topic), slog.String("event_id", id))

		return fmt.Errorf("stream publish to %s: %w", topic, err)
	}

	return nil
}

// Close is a no-op; the rueidis client is owned by the caller.
func (*StreamPublisher) Close() error {
	return nil
}
