package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Cart) Empty() bool {
	return c == nil || len(c.Items) == 0
}

// CartItem carries the live variant pricing joined from the catalog.
type CartItem struct {
	ID              uuid.UUID       `json:"id"`
	VariantID       uuid.UUID       `json:"variant_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	CategoryID      *uuid.UUID      `json:"category_id,omitempty"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	BasePrice       decimal.Decimal `json:"base_price"`
	AdditionalPrice decimal.Decimal `json:"additional_price"`
}

func (i CartItem) UnitPrice() decimal.Decimal {
	return i.BasePrice.Add(i.AdditionalPrice)
}

type User struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	Phone   string    `json:"phone"`
	IsStaff bool      `json:"is_staff"`
}
