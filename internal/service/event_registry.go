package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jnst/theshop-core/internal/messaging"
	"github.com/jnst/theshop-core/internal/model"
)

// EventBinding decodes a stored payload and publishes the result.
type EventBinding struct {
	Decode  func(content []byte) (model.IntegrationEvent, error)
	Publish func(ctx context.Context, event model.IntegrationEvent) error
}

// EventRegistry maps stable event tags to their bindings. It is populated at
// startup and read-only afterwards.
type EventRegistry struct {
	bindings map[string]EventBinding
}

// NewEventRegistry returns an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{bindings: map[string]EventBinding{}}
}

// RegisterEvent binds T's tag to a JSON decoder for T and pub.
func RegisterEvent[T model.IntegrationEvent](r *EventRegistry, pub messaging.Publisher) {
	var zero T

	r.bindings[zero.EventName()] = EventBinding{
		Decode: func(content []byte) (model.IntegrationEvent, error) {
			var ev T
			if err := json.Unmarshal(content, &ev); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedEvent, zero.EventName(), err)
			}

			return ev, nil
		},
		Publish: pub.Publish,
	}
}

// RegisterIntegrationEvents binds every integration event this service emits.
func RegisterIntegrationEvents(r *EventRegistry, pub messaging.Publisher) {
	RegisterEvent[model.OrderCreatedIntegrationEvent](r, pub)
	RegisterEvent[model.OrderStatusChangedIntegrationEvent](r, pub)
	RegisterEvent[model.ProductPriceChangedIntegrationEvent](r, pub)
}

// Resolve returns the binding for tag.
func (r *EventRegistry) Resolve(tag string) (EventBinding, error) {
	b, ok := r.bindings[tag]
	if !ok {
		return EventBinding{}, fmt.Errorf("%w: %q", model.ErrUnregisteredEvent, tag)
	}

	return b, nil
}

// Tags lists the registered tags in sorted order.
func (r *EventRegistry) Tags() []string {
	tags := make([]string, 0, len(r.bindings))
	for t := range r.bindings {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	return tags
}
