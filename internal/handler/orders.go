package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
)

// CreateOrder handles POST /orders.
func (s *APIServer) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var params model.CreateOrderParams
	if !decodeJSON(w, r, &params) {
		return
	}

	principal, _ := PrincipalFrom(r.Context())
	params.BuyerID = principal.UserID

	order, err := s.orders.CreateOrder(r.Context(), &params)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusCreated, order)
}

// GetOrder handles GET /orders/{id}.
func (s *APIServer) GetOrder(w http.ResponseWriter, r *http.Request) {
	s.withOrder(w, r, s.orders.GetOrder)
}

// CancelOrder handles PUT /orders/{id}/cancel.
func (s *APIServer) CancelOrder(w http.ResponseWriter, r *http.Request) {
	s.withOrder(w, r, s.orders.CancelOrder)
}

// ShipOrder handles PUT /orders/{id}/ship.
func (s *APIServer) ShipOrder(w http.ResponseWriter, r *http.Request) {
	s.withOrder(w, r, s.orders.ShipOrder)
}

type orderAction func(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Order, error)

func (*APIServer) withOrder(w http.ResponseWriter, r *http.Request, action orderAction) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, model.ErrOrderNotFound)

		return
	}

	principal, _ := PrincipalFrom(r.Context())

	order, err := action(r.Context(), principal, id)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, order)
}

type priceRequest struct {
	PriceCents *int64 `json:"priceCents"`
}

// UpdateProductPrice handles PUT /products/{id}/price.
func (s *APIServer) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, model.ErrProductNotFound)

		return
	}

	var req priceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.PriceCents == nil {
		writeError(w, r, model.ErrInvalidPrice)

		return
	}

	principal, _ := PrincipalFrom(r.Context())

	product, err := s.catalog.UpdateProductPrice(r.Context(), principal, id, *req.PriceCents)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, r, http.StatusOK, product)
}
