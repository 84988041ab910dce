// Package pricing derives order totals from items and coupon.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
)

var (
	DefaultTaxRate               = decimal.RequireFromString("0.09")
	DefaultShippingFee           = decimal.RequireFromString("10.00")
	DefaultFreeShippingThreshold = decimal.RequireFromString("100.00")

	hundred = decimal.NewFromInt(100)
)

const moneyPlaces = 2

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal_amount"`
	Tax      decimal.Decimal `json:"tax_amount"`
	Shipping decimal.Decimal `json:"shipping_amount"`
	Discount decimal.Decimal `json:"discount_amount"`
	Total    decimal.Decimal `json:"total_amount"`
}

type Calculator struct {
	taxRate               decimal.Decimal
	shippingFee           decimal.Decimal
	freeShippingThreshold decimal.Decimal
}

func NewCalculator() *Calculator {
	return &Calculator{
		taxRate:               DefaultTaxRate,
		shippingFee:           DefaultShippingFee,
		freeShippingThreshold: DefaultFreeShippingThreshold,
	}
}

// Calculate recomputes totals from scratch. Stored totals are never an input.
//
// The discount is clamped so the total never drops below zero.
func (c *Calculator) Calculate(items []models.OrderItem, discount *models.Discount) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = round(subtotal)

	tax := round(subtotal.Mul(c.taxRate))

	shipping := decimal.Zero
	if subtotal.LessThan(c.freeShippingThreshold) {
		shipping = c.shippingFee
	}
	shipping = round(shipping)

	off := round(DiscountAmount(subtotal, discount))
	gross := subtotal.Add(tax).Add(shipping)
	if off.GreaterThan(gross) {
		off = gross
	}

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Discount: off,
		Total:    round(gross.Sub(off)),
	}
}

// Apply writes freshly calculated totals onto the order.
func (c *Calculator) Apply(order *models.Order, discount *models.Discount) Totals {
	totals := c.Calculate(order.Items, discount)
	order.SubtotalAmount = totals.Subtotal
	order.TaxAmount = totals.Tax
	order.ShippingAmount = totals.Shipping
	order.DiscountAmount = totals.Discount
	order.TotalAmount = totals.Total
	return totals
}

// DiscountAmount is the unrounded, unclamped discount for a subtotal.
func DiscountAmount(subtotal decimal.Decimal, discount *models.Discount) decimal.Decimal {
	if discount == nil {
		return decimal.Zero
	}
	switch discount.Type {
	case models.DiscountFixed:
		return discount.Value
	case models.DiscountPercentage:
		return subtotal.Mul(discount.Value).Div(hundred)
	default:
		return decimal.Zero
	}
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}
