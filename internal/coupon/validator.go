// Package coupon validates coupon eligibility for an order.
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
)

const (
	ReasonNotActive     = "Coupon is not active."
	ReasonOutsideWindow = "Coupon is not valid at this time."
	ReasonMaxUsage      = "Coupon has reached maximum usage."
	ReasonBelowMinimum  = "Order amount is below minimum required."
	ReasonOncePerUser   = "Coupon can only be used once per user."
	ReasonNotApplicable = "Coupon is not applicable to any items in the order."
)

// UsageLookup reports whether a user already redeemed a coupon.
type UsageLookup interface {
	HasUsage(ctx context.Context, couponID, userID uuid.UUID) (bool, error)
}

type Validator struct {
	usages UsageLookup
	now    func() time.Time
}

func NewValidator(usages UsageLookup) *Validator {
	return &Validator{usages: usages, now: time.Now}
}

// WithClock returns a copy of the validator that reads time from now.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	clone := *v
	clone.now = now
	return &clone
}

// Validate runs the eligibility checks in order and stops at the first failure.
// It only reads state; calling it twice gives the same answer.
func (v *Validator) Validate(ctx context.Context, c *models.Coupon, orderAmount decimal.Decimal, userID uuid.UUID, items []models.OrderItem) (bool, string, error) {
	if c == nil {
		return false, ReasonNotActive, nil
	}
	if !c.IsActive {
		return false, ReasonNotActive, nil
	}

	now := v.now()
	if now.Before(c.ValidFrom) || !now.Before(c.ValidUntil) {
		return false, ReasonOutsideWindow, nil
	}

	if c.MaxUsage != nil && c.UsageCount >= *c.MaxUsage {
		return false, ReasonMaxUsage, nil
	}

	if c.MinOrderAmount != nil && orderAmount.LessThan(*c.MinOrderAmount) {
		return false, ReasonBelowMinimum, nil
	}

	if c.OnePerUser {
		if v.usages == nil {
			return false, "", fmt.Errorf("coupon usage lookup is not configured")
		}
		used, err := v.usages.HasUsage(ctx, c.ID, userID)
		if err != nil {
			return false, "", fmt.Errorf("failed to check coupon usage: %w", err)
		}
		if used {
			return false, ReasonOncePerUser, nil
		}
	}

	if len(c.ApplicableCategories) > 0 && !anyItemInCategories(items, c.ApplicableCategories) {
		return false, ReasonNotApplicable, nil
	}

	return true, "", nil
}

func anyItemInCategories(items []models.OrderItem, categories []uuid.UUID) bool {
	allowed := make(map[uuid.UUID]struct{}, len(categories))
	for _, id := range categories {
		allowed[id] = struct{}{}
	}
	for _, item := range items {
		if item.CategoryID == nil {
			continue
		}
		if _, ok := allowed[*item.CategoryID]; ok {
			return true
		}
	}
	return false
}
