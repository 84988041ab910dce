package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/models"
)

// paidOrder runs a checkout and a successful callback.
func (f *fixture) paidOrder(t *testing.T) *CheckoutResult {
	t.Helper()
	result := f.checkoutOne(t)
	if _, err := f.paymentSvc.HandleCallback(context.Background(), result.Payment.TransactionID); err != nil {
		t.Fatalf("callback failed: %v", err)
	}
	return result
}

func TestRefund_ApproveCancelsOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.paidOrder(t)
	owner := Actor{UserID: f.userID}
	staff := Actor{UserID: f.staffID, Staff: true}

	refund, err := f.refundSvc.Request(context.Background(), owner, RefundRequest{
		PaymentID: result.Payment.ID,
		Amount:    dec("50"),
		Reason:    "changed my mind",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refund.Status != models.RefundPending {
		t.Fatalf("expected pending refund, got %s", refund.Status)
	}
	if _, ok := f.notifier.findUser("Refund request for 50.00 IRR received."); !ok {
		t.Fatalf("expected refund request notification, got %+v", f.notifier.user)
	}

	approved, err := f.refundSvc.Approve(context.Background(), staff, refund.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Status != models.RefundApproved {
		t.Fatalf("expected approved refund, got %s", approved.Status)
	}
	if got := f.payments.status(t, result.Payment.ID); got != models.PaymentStatusRefunded {
		t.Fatalf("expected payment refunded, got %s", got)
	}
	if got := f.orders.status(t, result.Order.ID); got != models.OrderStatusCancelled {
		t.Fatalf("expected order cancelled, got %s", got)
	}
	if _, ok := f.notifier.findUser("Refund for 50.00 IRR approved."); !ok {
		t.Fatalf("expected refund approved notification, got %+v", f.notifier.user)
	}

	if _, err := f.refundSvc.Approve(context.Background(), staff, refund.ID); !errors.Is(err, db.ErrInvalidStatusTransition) {
		t.Fatalf("expected second approval to fail with ErrInvalidStatusTransition, got %v", err)
	}
}

func TestRefund_Reject(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.paidOrder(t)

	refund, err := f.refundSvc.Request(context.Background(), Actor{UserID: f.userID}, RefundRequest{PaymentID: result.Payment.ID, Amount: dec("10")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rejected, err := f.refundSvc.Reject(context.Background(), Actor{UserID: f.staffID, Staff: true}, refund.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected.Status != models.RefundRejected {
		t.Fatalf("expected rejected refund, got %s", rejected.Status)
	}
	if got := f.payments.status(t, result.Payment.ID); got != models.PaymentStatusSuccess {
		t.Fatalf("expected payment to stay success, got %s", got)
	}
	if got := f.orders.status(t, result.Order.ID); got != models.OrderStatusProcessing {
		t.Fatalf("expected order to stay processing, got %s", got)
	}
}

func TestRefund_RequestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		paid    bool
		actor   func(f *fixture) Actor
		amount  string
		wantErr error
	}{
		{name: "amount above payment", paid: true, amount: "109.01", wantErr: ErrInvalidInput},
		{name: "zero amount", paid: true, amount: "0", wantErr: ErrInvalidInput},
		{name: "not the owner", paid: true, amount: "1", actor: func(*fixture) Actor { return Actor{UserID: uuid.New()} }, wantErr: ErrForbidden},
		{name: "payment still pending", amount: "1", wantErr: ErrRefundNotAllowed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			var result *CheckoutResult
			if tt.paid {
				result = f.paidOrder(t)
			} else {
				result = f.checkoutOne(t)
			}
			actor := Actor{UserID: f.userID}
			if tt.actor != nil {
				actor = tt.actor(f)
			}

			_, err := f.refundSvc.Request(context.Background(), actor, RefundRequest{PaymentID: result.Payment.ID, Amount: dec(tt.amount)})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(f.refunds.byID) != 0 {
				t.Fatal("expected no refund to be created")
			}
		})
	}
}

func TestRefund_StaffOnlyDecisions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.paidOrder(t)
	owner := Actor{UserID: f.userID}
	refund, err := f.refundSvc.Request(context.Background(), owner, RefundRequest{PaymentID: result.Payment.ID, Amount: dec("5")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := f.refundSvc.Approve(context.Background(), owner, refund.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on approve, got %v", err)
	}
	if _, err := f.refundSvc.Reject(context.Background(), owner, refund.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on reject, got %v", err)
	}
	if _, err := f.refundSvc.Approve(context.Background(), Actor{UserID: f.staffID, Staff: true}, uuid.New()); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown refund, got %v", err)
	}
}

func TestStatusDispatcher_SkipsUnchangedStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.paidOrder(t)
	historyBefore := len(f.orders.historyFor(result.Order.ID))
	notificationsBefore := len(f.notifier.user)

	payment, err := f.payments.GetByID(context.Background(), result.Payment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.statuses.PaymentStatusChanged(context.Background(), payment); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(f.orders.historyFor(result.Order.ID)); got != historyBefore {
		t.Fatalf("expected no new history rows, got %d", got-historyBefore)
	}
	if len(f.notifier.user) != notificationsBefore {
		t.Fatal("expected no notifications for an unchanged status")
	}
}

func TestStatusDispatcher_PaymentWithoutOrderIsIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	payment := &models.Payment{ID: uuid.New(), Status: models.PaymentStatusSuccess}
	if err := f.statuses.PaymentStatusChanged(context.Background(), payment); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOrderService_Update(t *testing.T) {
	t.Parallel()

	cancelled := models.OrderStatusCancelled
	shipped := models.OrderStatusShipped
	bogus := models.OrderStatus("lost")

	tests := []struct {
		name       string
		actor      func(f *fixture) Actor
		update     OrderUpdate
		wantErr    error
		wantStatus models.OrderStatus
	}{
		{
			name:       "owner cancels pending order",
			actor:      func(f *fixture) Actor { return Actor{UserID: f.userID} },
			update:     OrderUpdate{Status: &cancelled},
			wantStatus: models.OrderStatusCancelled,
		},
		{
			name:    "owner cannot ship",
			actor:   func(f *fixture) Actor { return Actor{UserID: f.userID} },
			update:  OrderUpdate{Status: &shipped},
			wantErr: ErrForbidden,
		},
		{
			name:       "staff ships",
			actor:      func(f *fixture) Actor { return Actor{UserID: f.staffID, Staff: true} },
			update:     OrderUpdate{Status: &shipped},
			wantStatus: models.OrderStatusShipped,
		},
		{
			name:    "stranger is rejected",
			actor:   func(*fixture) Actor { return Actor{UserID: uuid.New()} },
			update:  OrderUpdate{Status: &cancelled},
			wantErr: ErrForbidden,
		},
		{
			name:    "unknown status",
			actor:   func(f *fixture) Actor { return Actor{UserID: f.staffID, Staff: true} },
			update:  OrderUpdate{Status: &bogus},
			wantErr: ErrInvalidInput,
		},
		{
			name:       "owner edits address",
			actor:      func(f *fixture) Actor { return Actor{UserID: f.userID} },
			update:     OrderUpdate{BillingAddress: &models.Address{City: "Shiraz"}},
			wantStatus: models.OrderStatusPending,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			result := f.checkoutOne(t)

			order, err := f.orderSvc.Update(context.Background(), tt.actor(f), result.Order.ID, tt.update)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if order.Status != tt.wantStatus {
				t.Fatalf("expected status %s, got %s", tt.wantStatus, order.Status)
			}
			if tt.update.BillingAddress != nil && (order.BillingAddress == nil || order.BillingAddress.City != "Shiraz") {
				t.Fatalf("expected billing address update, got %+v", order.BillingAddress)
			}
			if tt.update.Status != nil {
				history := f.orders.historyFor(order.ID)
				want := fmt.Sprintf("Status changed from pending to %s", tt.wantStatus)
				if history[len(history)-1].Note != want {
					t.Fatalf("expected history note %q, got %q", want, history[len(history)-1].Note)
				}
			}
		})
	}
}
