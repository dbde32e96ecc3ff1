package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/theshop-core/internal/model"
)

const (
	insertOutboxSQL = `INSERT INTO outbox_messages (id, type, content, occurred_on) VALUES ($1, $2, $3, $4)`

	pendingOutboxSQL = `SELECT id, type, content, occurred_on, processed_on, error
FROM outbox_messages
WHERE processed_on IS NULL
ORDER BY occurred_on
LIMIT $1`

	updateOutboxSQL = `UPDATE outbox_messages SET processed_on = $2, error = $3 WHERE id = $1`
)

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(pool *pgxpool.Pool) OutboxRepository {
	return &OutboxRepositoryImpl{pool: pool}
}

// Save appends an outbox entry for event to the current transaction.
func (r *OutboxRepositoryImpl) Save(ctx context.Context, event model.IntegrationEvent) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return model.ErrNoTransaction
	}

	entry, err := NewOutboxEntry(event)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, insertOutboxSQL,
		entry.ID, entry.EventTypeName, string(entry.Content), entry.OccurredOn,
	); err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", err)
	}

	return nil
}

// GetPendingEntries retrieves unprocessed outbox entries, oldest first.
func (r *OutboxRepositoryImpl) GetPendingEntries(ctx context.Context, limit int) ([]*model.OutboxEntry, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, pendingOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.OutboxEntry, error) {
		var (
			e       model.OutboxEntry
			content string
		)

		if err := row.Scan(&e.ID, &e.EventTypeName, &content, &e.OccurredOn, &e.ProcessedOn, &e.Error); err != nil {
			return nil, err
		}
		e.Content = []byte(content)

		return &e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending entries: %w", err)
	}

	return entries, nil
}

// UpdateEntries writes back the processed and error columns of entries in a
// single transaction using one batch round trip.
func (r *OutboxRepositoryImpl) UpdateEntries(ctx context.Context, entries []*model.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(updateOutboxSQL, e.ID, e.ProcessedOn, e.Error)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to update outbox entries: %w", err)
		}

		return nil
	})
}

// NewOutboxEntry serializes event into a pending outbox entry.
func NewOutboxEntry(event model.IntegrationEvent) (*model.OutboxEntry, error) {
	content, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", event.EventName(), err)
	}

	id := event.EventID()
	if id == uuid.Nil {
		id = uuid.New()
	}

	occurred := event.OccurredAt()
	if occurred.IsZero() {
		occurred = time.Now()
	}

	return &model.OutboxEntry{
		ID:            id,
		EventTypeName: event.EventName(),
		Content:       content,
		OccurredOn:    occurred.UTC(),
	}, nil
}
