// Package messaging publishes integration events to the message broker.
package messaging

import (
	"context"
	"strings"
	"unicode"

	"github.com/jnst/theshop-core/internal/model"
)

const integrationEventSuffix = "-integration-event"

// Publisher sends one integration event to its topic. Implementations fail
// fast and return every error; retrying is the caller's job.
type Publisher interface {
	Publish(ctx context.Context, event model.IntegrationEvent) error
	Close() error
}

// TopicName derives the broker topic from an event type name: the name is
// hyphenated on word boundaries, lower-cased and stripped of a trailing
// "-integration-event". Namespace qualifiers before the last dot are ignored.
//
//	OrderCreatedIntegrationEvent -> order-created
//	HTTPCallFailedIntegrationEvent -> http-call-failed
func TopicName(eventName string) string {
	if i := strings.LastIndexByte(eventName, '.'); i >= 0 {
		eventName = eventName[i+1:]
	}

	runes := []rune(eventName)

	var b strings.Builder
	b.Grow(len(runes) + 8)

	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('-')
			}
		}

		b.WriteRune(unicode.ToLower(r))
	}

	return strings.TrimSuffix(b.String(), integrationEventSuffix)
}
