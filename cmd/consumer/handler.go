package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jnst/theshop-core/internal/messaging"
	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/service"
)

var errMissingEventType = errors.New("missing event_type in message")

// MessageHandler decodes broker messages with the event registry and hands
// them to the registered sink.
type MessageHandler struct {
	registry *service.EventRegistry
}

// NewMessageHandler creates a new message handler instance.
func NewMessageHandler(registry *service.EventRegistry) *MessageHandler {
	return &MessageHandler{registry: registry}
}

// Handle processes one message. Unknown event types are skipped.
func (h *MessageHandler) Handle(ctx context.Context, msg messaging.Message) error {
	if msg.EventType == "" {
		return errMissingEventType
	}

	binding, err := h.registry.Resolve(msg.EventType)
	if err != nil {
		slog.Warn("unknown event type", slog.String("event_type", msg.EventType))

		return nil
	}

	event, err := binding.Decode(msg.Payload)
	if err != nil {
		return err
	}

	if event.EventID().String() != msg.Key {
		return fmt.Errorf("message key %q does not match event id %s", msg.Key, event.EventID())
	}

	return binding.Publish(ctx, event)
}

// eventLog is the consumer's sink: it records each received event.
type eventLog struct {
	log *slog.Logger
}

func (e *eventLog) Publish(_ context.Context, event model.IntegrationEvent) error {
	attrs := []any{
		slog.String("event_type", event.EventName()),
		slog.String("event_id", event.EventID().String()),
		slog.Time("occurred_at", event.OccurredAt()),
	}

	switch ev := event.(type) {
	case model.OrderCreatedIntegrationEvent:
		attrs = append(attrs,
			slog.String("order_id", ev.OrderID.String()),
			slog.String("buyer_id", ev.BuyerID.String()),
			slog.Int64("total_amount_cents", ev.TotalAmountCents),
		)
	case model.OrderStatusChangedIntegrationEvent:
		attrs = append(attrs,
			slog.String("order_id", ev.OrderID.String()),
			slog.String("old_status", string(ev.OldStatus)),
			slog.String("new_status", string(ev.NewStatus)),
		)
	case model.ProductPriceChangedIntegrationEvent:
		attrs = append(attrs,
			slog.String("product_id", ev.ProductID.String()),
			slog.Int64("old_price_cents", ev.OldPriceCents),
			slog.Int64("new_price_cents", ev.NewPriceCents),
		)
	}

	e.log.Info("integration event received", attrs...)

	return nil
}

func (*eventLog) Close() error { return nil }
