package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/repository"
)

// CatalogServiceImpl implements CatalogService.
type CatalogServiceImpl struct {
	productRepo    repository.ProductRepository
	outboxRepo     repository.OutboxRepository
	transactionMgr repository.TransactionManager
	now            func() time.Time
}

// NewCatalogServiceImpl creates a new CatalogService implementation.
func NewCatalogServiceImpl(
	productRepo repository.ProductRepository,
	outboxRepo repository.OutboxRepository,
	transactionMgr repository.TransactionManager,
) CatalogService {
	return &CatalogServiceImpl{
		productRepo:    productRepo,
		outboxRepo:     outboxRepo,
		transactionMgr: transactionMgr,
		now:            time.Now,
	}
}

// UpdateProductPrice changes a product's price and records
// ProductPriceChangedIntegrationEvent. Setting the current price again is a no-op.
func (s *CatalogServiceImpl) UpdateProductPrice(
	ctx context.Context, principal model.Principal, id uuid.UUID, priceCents int64,
) (*model.Product, error) {
	if !principal.IsAdmin() {
		return nil, model.ErrForbidden
	}

	if priceCents < 0 {
		return nil, model.ErrInvalidPrice
	}

	var product *model.Product

	err := s.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		var err error

		product, err = s.productRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if product.PriceCents == priceCents {
			return nil
		}

		now := s.now().UTC()
		if err := s.productRepo.UpdatePrice(ctx, id, priceCents, now); err != nil {
			return err
		}

		old := product.PriceCents
		product.PriceCents = priceCents
		product.UpdatedAt = now

		return s.outboxRepo.Save(ctx, model.ProductPriceChangedIntegrationEvent{
			EventMeta:     model.NewEventMeta(now),
			ProductID:     id,
			OldPriceCents: old,
			NewPriceCents: priceCents,
		})
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}
