package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxOutboxErrorLength bounds the error column of an outbox entry.
const MaxOutboxErrorLength = 2000

// OutboxEntry is a durable record of an integration event awaiting delivery.
// An entry is pending while ProcessedOn is nil.
type OutboxEntry struct {
	ID            uuid.UUID  `json:"id"`
	EventTypeName string     `json:"eventTypeName"`
	Content       []byte     `json:"content"`
	OccurredOn    time.Time  `json:"occurredOn"`
	ProcessedOn   *time.Time `json:"processedOn"`
	Error         *string    `json:"error"`
}

// Pending reports whether the entry still needs to be dispatched.
func (e *OutboxEntry) Pending() bool {
	return e.ProcessedOn == nil
}

// MarkProcessed stamps the entry as delivered (or terminally rejected).
func (e *OutboxEntry) MarkProcessed(at time.Time) {
	t := at.UTC()
	e.ProcessedOn = &t
}

// RecordError stores msg as the entry's last error, truncated to the column
// size on a rune boundary. Invalid UTF-8 is replaced so the row always stores.
func (e *OutboxEntry) RecordError(msg string) {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	if len(msg) > MaxOutboxErrorLength {
		cut := MaxOutboxErrorLength
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	e.Error = &msg
}
