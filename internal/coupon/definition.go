package coupon

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
)

var hundred = decimal.NewFromInt(100)

// CheckDefinition validates a coupon and its discount before it is stored.
func CheckDefinition(c *models.Coupon) error {
	if c == nil {
		return fmt.Errorf("coupon is required")
	}
	if c.Code == "" {
		return fmt.Errorf("coupon code is required")
	}
	if err := CheckDiscount(c.Discount); err != nil {
		return err
	}
	if !c.ValidFrom.Before(c.ValidUntil) {
		return fmt.Errorf("valid_from must be before valid_until")
	}
	if c.MinOrderAmount != nil && c.MinOrderAmount.IsNegative() {
		return fmt.Errorf("minimum order amount cannot be negative")
	}
	if c.MaxUsage != nil && *c.MaxUsage <= 0 {
		return fmt.Errorf("max usage must be positive when set")
	}
	return nil
}

func CheckDiscount(d models.Discount) error {
	switch d.Type {
	case models.DiscountPercentage:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return fmt.Errorf("percentage discount must be between 0 and 100")
		}
	case models.DiscountFixed:
		if d.Value.IsNegative() {
			return fmt.Errorf("fixed discount cannot be negative")
		}
	default:
		return fmt.Errorf("unknown discount type %q", d.Type)
	}
	return nil
}
