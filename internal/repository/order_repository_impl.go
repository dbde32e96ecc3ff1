package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/theshop-core/internal/model"
)

// OrderRepositoryImpl implements OrderRepository using PostgreSQL.
type OrderRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOrderRepositoryImpl creates a new OrderRepository implementation.
func NewOrderRepositoryImpl(pool *pgxpool.Pool) OrderRepository {
	return &OrderRepositoryImpl{pool: pool}
}

// Create inserts the order and its items.
func (r *OrderRepositoryImpl) Create(ctx context.Context, o *model.Order) error {
	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO orders (id, buyer_id, status, street, city, postal_code, country, total_cents, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		o.ID, o.BuyerID, string(o.Status), o.Address.Street, o.Address.City, o.Address.PostalCode,
		o.Address.Country, o.TotalCents, o.CreatedAt,
	)

	for _, it := range o.Items {
		batch.Queue(
			`INSERT INTO order_items (order_id, product_id, product_name, unit_price_cents, quantity)
VALUES ($1, $2, $3, $4, $5)`,
			o.ID, it.ProductID, it.ProductName, it.UnitPriceCents, it.Quantity,
		)
	}

	if err := querier(ctx, r.pool).SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return nil
}

// GetByID retrieves an order with its items.
func (r *OrderRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	q := querier(ctx, r.pool)

	var (
		o      model.Order
		status string
	)

	err := q.QueryRow(ctx,
		`SELECT id, buyer_id, status, street, city, postal_code, country, total_cents, created_at
FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.BuyerID, &status, &o.Address.Street, &o.Address.City, &o.Address.PostalCode,
		&o.Address.Country, &o.TotalCents, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	rows, err := q.Query(ctx,
		`SELECT product_id, product_name, unit_price_cents, quantity
FROM order_items WHERE order_id = $1 ORDER BY product_name`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}

	o.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.OrderItem, error) {
		var it model.OrderItem
		err := row.Scan(&it.ProductID, &it.ProductName, &it.UnitPriceCents, &it.Quantity)

		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan order items: %w", err)
	}

	return &o, nil
}

// UpdateStatus moves the order from status from to status to. It fails with
// model.ErrInvalidOrderTransition when the stored status is no longer from.
func (r *OrderRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error {
	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s is no longer %s: %w", id, from, model.ErrInvalidOrderTransition)
	}

	return nil
}
