package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

type Discount struct {
	ID    uuid.UUID       `json:"id"`
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type Coupon struct {
	ID                   uuid.UUID        `json:"id"`
	Code                 string           `json:"code"`
	Discount             Discount         `json:"discount"`
	ValidFrom            time.Time        `json:"valid_from"`
	ValidUntil           time.Time        `json:"valid_until"`
	MaxUsage             *int             `json:"max_usage,omitempty"`
	UsageCount           int              `json:"usage_count"`
	MinOrderAmount       *decimal.Decimal `json:"min_order_amount,omitempty"`
	OnePerUser           bool             `json:"one_per_user"`
	ApplicableCategories []uuid.UUID      `json:"applicable_categories,omitempty"`
	IsActive             bool             `json:"is_active"`
}

type CouponUsage struct {
	ID        uuid.UUID `json:"id"`
	CouponID  uuid.UUID `json:"coupon_id"`
	UserID    uuid.UUID `json:"user_id"`
	OrderID   uuid.UUID `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}
