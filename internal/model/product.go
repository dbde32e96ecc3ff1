package model

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog item.
type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PriceCents  int64     `json:"priceCents"`
	IsAvailable bool      `json:"isAvailable"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
