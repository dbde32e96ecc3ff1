package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jnst/theshop-core/internal/messaging"
	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/service"
)

func newHandler(buf *bytes.Buffer) *MessageHandler {
	registry := service.NewEventRegistry()
	service.RegisterIntegrationEvents(registry, &eventLog{log: slog.New(slog.NewJSONHandler(buf, nil))})

	return NewMessageHandler(registry)
}

func TestMessageHandler(t *testing.T) {
	t.Parallel()

	ev := model.OrderStatusChangedIntegrationEvent{
		EventMeta: model.NewEventMeta(time.Now()),
		OrderID:   uuid.New(),
		OldStatus: model.OrderStatusPending,
		NewStatus: model.OrderStatusShipped,
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	t.Run("known event is recorded", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := newHandler(&buf)

		err := h.Handle(context.Background(), messaging.Message{
			Key: ev.ID.String(), EventType: ev.EventName(), Payload: payload,
		})
		require.NoError(t, err)
		require.Contains(t, buf.String(), `"new_status":"Shipped"`)
		require.Contains(t, buf.String(), ev.OrderID.String())
	})

	t.Run("unknown event is skipped", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		h := newHandler(&buf)

		err := h.Handle(context.Background(), messaging.Message{EventType: "SomethingElse", Payload: []byte(`{}`)})
		require.NoError(t, err)
		require.Empty(t, buf.String())
	})

	t.Run("missing type and bad payload fail", func(t *testing.T) {
		t.Parallel()

		h := newHandler(&bytes.Buffer{})

		require.ErrorIs(t, h.Handle(context.Background(), messaging.Message{Payload: payload}), errMissingEventType)

		err := h.Handle(context.Background(), messaging.Message{EventType: ev.EventName(), Payload: []byte("{")})
		require.ErrorIs(t, err, model.ErrMalformedEvent)
	})

	t.Run("key must match event id", func(t *testing.T) {
		t.Parallel()

		h := newHandler(&bytes.Buffer{})

		err := h.Handle(context.Background(), messaging.Message{
			Key: uuid.NewString(), EventType: ev.EventName(), Payload: payload,
		})
		require.Error(t, err)
	})
}
