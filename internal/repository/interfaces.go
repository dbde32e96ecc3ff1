// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
)

// OutboxRepository defines methods for outbox entry data access.
type OutboxRepository interface {
	// Save appends event to the transaction carried by ctx. It fails with
	// model.ErrNoTransaction when ctx has no transaction.
	Save(ctx context.Context, event model.IntegrationEvent) error
	// GetPendingEntries returns up to limit unprocessed entries, oldest first.
	GetPendingEntries(ctx context.Context, limit int) ([]*model.OutboxEntry, error)
	// UpdateEntries persists processed/error state for entries in one commit.
	UpdateEntries(ctx context.Context, entries []*model.OutboxEntry) error
}

// AccountRepository defines methods for account data access.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByRefreshToken(ctx context.Context, token string) (*model.Account, error)
	UpdateRefreshToken(ctx context.Context, account *model.Account) error
}

// OrderRepository defines methods for order data access.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) error
}

// ProductRepository defines methods for catalog data access.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Product, error)
	UpdatePrice(ctx context.Context, id uuid.UUID, priceCents int64, at time.Time) error
}

// TransactionManager defines methods for database transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
