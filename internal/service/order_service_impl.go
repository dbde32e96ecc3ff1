package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
	"github.com/jnst/theshop-core/internal/repository"
)

// OrderServiceImpl implements OrderService. Every state change is written
// together with its integration event in one transaction.
type OrderServiceImpl struct {
	orderRepo      repository.OrderRepository
	productRepo    repository.ProductRepository
	outboxRepo     repository.OutboxRepository
	transactionMgr repository.TransactionManager
	now            func() time.Time
}

// NewOrderServiceImpl creates a new OrderService implementation.
func NewOrderServiceImpl(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	outboxRepo repository.OutboxRepository,
	transactionMgr repository.TransactionManager,
) OrderService {
	return &OrderServiceImpl{
		orderRepo:      orderRepo,
		productRepo:    productRepo,
		outboxRepo:     outboxRepo,
		transactionMgr: transactionMgr,
		now:            time.Now,
	}
}

// CreateOrder prices the requested lines from the catalog, stores the order
// and records OrderCreatedIntegrationEvent.
func (s *OrderServiceImpl) CreateOrder(ctx context.Context, params *model.CreateOrderParams) (*model.Order, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(params.Lines))
	for _, l := range params.Lines {
		ids = append(ids, l.ProductID)
	}

	now := s.now().UTC()
	order := &model.Order{
		ID:        uuid.New(),
		BuyerID:   params.BuyerID,
		Status:    model.OrderStatusPending,
		Address:   params.Address,
		CreatedAt: now,
	}

	err := s.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		products, err := s.productRepo.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}

		order.Items, order.TotalCents, err = priceLines(params.Lines, products)
		if err != nil {
			return err
		}

		if err := s.orderRepo.Create(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		return s.outboxRepo.Save(ctx, model.OrderCreatedIntegrationEvent{
			EventMeta:        model.NewEventMeta(now),
			OrderID:          order.ID,
			BuyerID:          order.BuyerID,
			TotalAmountCents: order.TotalCents,
		})
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func priceLines(lines []model.OrderLine, products map[uuid.UUID]*model.Product) ([]model.OrderItem, int64, error) {
	merged := map[uuid.UUID]int{}
	order := make([]uuid.UUID, 0, len(lines))

	for _, l := range lines {
		if _, seen := merged[l.ProductID]; !seen {
			order = append(order, l.ProductID)
		}
		merged[l.ProductID] += l.Quantity
	}

	items := make([]model.OrderItem, 0, len(order))

	var total int64

	for _, id := range order {
		p, ok := products[id]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s", model.ErrProductNotFound, id)
		}

		if !p.IsAvailable {
			return nil, 0, fmt.Errorf("%w: %s", model.ErrProductUnavailable, p.Name)
		}

		qty := merged[id]
		items = append(items, model.OrderItem{
			ProductID:      id,
			ProductName:    p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       qty,
		})
		total += p.PriceCents * int64(qty)
	}

	return items, total, nil
}

// GetOrder returns an order the caller owns, or any order for admins.
func (s *OrderServiceImpl) GetOrder(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !principal.CanAccess(order.BuyerID) {
		return nil, model.ErrOrderNotFound
	}

	return order, nil
}

// CancelOrder cancels a pending order owned by the caller.
func (s *OrderServiceImpl) CancelOrder(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Order, error) {
	return s.transition(ctx, principal, id, model.OrderStatusCancelled)
}

// ShipOrder marks a pending order as shipped. Admin only.
func (s *OrderServiceImpl) ShipOrder(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Order, error) {
	if !principal.IsAdmin() {
		return nil, model.ErrForbidden
	}

	return s.transition(ctx, principal, id, model.OrderStatusShipped)
}

func (s *OrderServiceImpl) transition(
	ctx context.Context, principal model.Principal, id uuid.UUID, next model.OrderStatus,
) (*model.Order, error) {
	var order *model.Order

	err := s.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		var err error

		order, err = s.orderRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if !principal.CanAccess(order.BuyerID) {
			return model.ErrOrderNotFound
		}

		prev, err := order.Transition(next)
		if err != nil {
			return err
		}

		if err := s.orderRepo.UpdateStatus(ctx, id, prev, next); err != nil {
			return err
		}

		return s.outboxRepo.Save(ctx, model.OrderStatusChangedIntegrationEvent{
			EventMeta: model.NewEventMeta(s.now()),
			OrderID:   id,
			OldStatus: prev,
			NewStatus: next,
		})
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}
