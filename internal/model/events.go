package model

import (
	"time"

	"github.com/google/uuid"
)

// IntegrationEvent is an event published to other services through the outbox.
// EventName is the stable tag persisted with the outbox entry and used to
// resolve the event at dispatch time; it must not change once entries exist.
type IntegrationEvent interface {
	EventID() uuid.UUID
	OccurredAt() time.Time
	EventName() string
}

// EventMeta carries the identity and timestamp shared by all integration events.
type EventMeta struct {
	ID         uuid.UUID `json:"id"`
	OccurredOn time.Time `json:"occurredOn"`
}

// NewEventMeta returns metadata with a fresh id stamped at now.
func NewEventMeta(now time.Time) EventMeta {
	return EventMeta{ID: uuid.New(), OccurredOn: now.UTC()}
}

// EventID returns the event identifier, used as the broker message key.
func (m EventMeta) EventID() uuid.UUID { return m.ID }

// OccurredAt returns when the event happened.
func (m EventMeta) OccurredAt() time.Time { return m.OccurredOn }

// OrderCreatedIntegrationEvent is emitted when an order is placed.
type OrderCreatedIntegrationEvent struct {
	EventMeta

	OrderID          uuid.UUID `json:"orderId"`
	BuyerID          uuid.UUID `json:"buyerId"`
	TotalAmountCents int64     `json:"totalAmountCents"`
}

func (OrderCreatedIntegrationEvent) EventName() string { return "OrderCreatedIntegrationEvent" }

// OrderStatusChangedIntegrationEvent is emitted when an order moves between statuses.
type OrderStatusChangedIntegrationEvent struct {
	EventMeta

	OrderID   uuid.UUID   `json:"orderId"`
	OldStatus OrderStatus `json:"oldStatus"`
	NewStatus OrderStatus `json:"newStatus"`
}

func (OrderStatusChangedIntegrationEvent) EventName() string {
	return "OrderStatusChangedIntegrationEvent"
}

// ProductPriceChangedIntegrationEvent is emitted when a catalog price changes.
type ProductPriceChangedIntegrationEvent struct {
	EventMeta

	ProductID     uuid.UUID `json:"productId"`
	OldPriceCents int64     `json:"oldPriceCents"`
	NewPriceCents int64     `json:"newPriceCents"`
}

func (ProductPriceChangedIntegrationEvent) EventName() string {
	return "ProductPriceChangedIntegrationEvent"
}
