package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/theshop-core/internal/model"
)

const productColumns = `id, name, price_cents, is_available, updated_at`

// ProductRepositoryImpl implements ProductRepository using PostgreSQL.
type ProductRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewProductRepositoryImpl creates a new ProductRepository implementation.
func NewProductRepositoryImpl(pool *pgxpool.Pool) ProductRepository {
	return &ProductRepositoryImpl{pool: pool}
}

// GetByID retrieves a product by ID.
func (r *ProductRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrProductNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}

	return p, nil
}

// GetByIDs retrieves the products that exist among ids.
func (r *ProductRepositoryImpl) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error) {
	rows, err := querier(ctx, r.pool).Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("failed to scan products: %w", err)
	}

	out := make(map[uuid.UUID]*model.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}

	return out, nil
}

// UpdatePrice sets the product price.
func (r *ProductRepositoryImpl) UpdatePrice(ctx context.Context, id uuid.UUID, priceCents int64, at time.Time) error {
	tag, err := querier(ctx, r.pool).Exec(ctx,
		`UPDATE products SET price_cents = $2, updated_at = $3 WHERE id = $1`, id, priceCents, at)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return model.ErrProductNotFound
	}

	return nil
}

func scanProduct(row pgx.CollectableRow) (*model.Product, error) {
	var p model.Product
	if err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.IsAvailable, &p.UpdatedAt); err != nil {
		return nil, err
	}

	return &p, nil
}
