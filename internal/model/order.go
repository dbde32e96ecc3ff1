package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// Address is a shipping address.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// OrderItem is one priced line of an order.
type OrderItem struct {
	ProductID      uuid.UUID `json:"productId"`
	ProductName    string    `json:"productName"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	Quantity       int       `json:"quantity"`
}

// Order represents an order aggregate.
type Order struct {
	ID         uuid.UUID   `json:"id"`
	BuyerID    uuid.UUID   `json:"buyerId"`
	Status     OrderStatus `json:"status"`
	Address    Address     `json:"address"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"totalCents"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Transition moves the order to next, returning the previous status.
// Only pending orders can be shipped or cancelled.
func (o *Order) Transition(next OrderStatus) (OrderStatus, error) {
	if o.Status != OrderStatusPending {
		return o.Status, ErrInvalidOrderTransition
	}

	if next != OrderStatusShipped && next != OrderStatusCancelled {
		return o.Status, ErrInvalidOrderTransition
	}

	prev := o.Status
	o.Status = next

	return prev, nil
}

// OrderLine is a requested product and quantity.
type OrderLine struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// CreateOrderParams represents parameters for placing an order.
type CreateOrderParams struct {
	BuyerID uuid.UUID   `json:"-"`
	Address Address     `json:"address"`
	Lines   []OrderLine `json:"lines"`
}

// Validate validates the create order parameters.
func (p *CreateOrderParams) Validate() error {
	if len(p.Lines) == 0 {
		return ErrEmptyOrder
	}

	for _, l := range p.Lines {
		if l.Quantity <= 0 {
			return ErrInvalidQuantity
		}
	}

	if p.Address.Street == "" || p.Address.City == "" || p.Address.Country == "" {
		return ErrInvalidAddress
	}

	return nil
}
