package services

import (
	"context"
	"errors"
	"testing"

	"github.com/gitshopapp/shopcore/internal/models"
)

func TestOrderService_AddressesLockedAfterShipping(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.checkoutOne(t)
	staff := Actor{UserID: f.staffID, Staff: true}
	owner := Actor{UserID: f.userID}
	ctx := context.Background()

	shipped := models.OrderStatusShipped
	if _, err := f.orderSvc.Update(ctx, staff, result.Order.ID, OrderUpdate{Status: &shipped}); err != nil {
		t.Fatalf("ship: unexpected error: %v", err)
	}

	_, err := f.orderSvc.Update(ctx, owner, result.Order.ID, OrderUpdate{ShippingAddress: &models.Address{City: "Tabriz"}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	cancelled := models.OrderStatusCancelled
	if _, err := f.orderSvc.Update(ctx, owner, result.Order.ID, OrderUpdate{Status: &cancelled}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("owner cancel after shipping: expected ErrForbidden, got %v", err)
	}
}

func TestOrderService_GetChecksOwnership(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.checkoutOne(t)
	ctx := context.Background()

	if _, err := f.orderSvc.Get(ctx, Actor{UserID: f.userID}, result.Order.ID); err != nil {
		t.Fatalf("owner: unexpected error: %v", err)
	}
	if _, err := f.orderSvc.Get(ctx, Actor{UserID: f.staffID, Staff: true}, result.Order.ID); err != nil {
		t.Fatalf("staff: unexpected error: %v", err)
	}
	if _, err := f.orderSvc.Get(ctx, Actor{UserID: f.staffID}, result.Order.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger: expected ErrForbidden, got %v", err)
	}
}
