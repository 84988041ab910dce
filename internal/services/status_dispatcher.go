package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/observability"
)

// orderStatusForPayment maps a terminal payment status to the order status it forces.
var orderStatusForPayment = map[models.PaymentStatus]models.OrderStatus{
	models.PaymentStatusSuccess:  models.OrderStatusProcessing,
	models.PaymentStatusFailed:   models.OrderStatusCancelled,
	models.PaymentStatusRefunded: models.OrderStatusCancelled,
}

// StatusDispatcher applies order status changes and emits their side effects:
// a history row, owner and staff notifications, and an audit entry.
type StatusDispatcher struct {
	orders   OrderStore
	notifier Notifier
	audit    AuditLogger
	logger   *slog.Logger
}

func NewStatusDispatcher(orders OrderStore, notifier Notifier, auditLogger AuditLogger, logger *slog.Logger) *StatusDispatcher {
	return &StatusDispatcher{orders: orders, notifier: notifier, audit: auditLogger, logger: logger}
}

func (d *StatusDispatcher) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, d.logger)
}

// PaymentStatusChanged moves the order paid by payment to the status its
// payment outcome implies. Payments without an order are ignored.
func (d *StatusDispatcher) PaymentStatusChanged(ctx context.Context, payment *models.Payment) error {
	target, ok := orderStatusForPayment[payment.Status]
	if !ok {
		return nil
	}

	order, err := d.orders.GetByPaymentID(ctx, payment.ID)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load order for payment %s: %w", payment.ID, err)
	}

	_, err = d.ChangeOrderStatus(ctx, order, target, nil)
	return err
}

// ChangeOrderStatus writes the new status only when it differs from the
// current one and reports whether a change happened. actor is nil for
// changes driven by the system.
func (d *StatusDispatcher) ChangeOrderStatus(ctx context.Context, order *models.Order, to models.OrderStatus, actor *uuid.UUID) (bool, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order_status.change",
		sentry.WithOpName("service.order_status"),
		sentry.WithDescription("ChangeOrderStatus"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if !to.Valid() {
		return false, invalidInput("unknown order status %q", to)
	}
	from := order.Status
	if from == to {
		return false, nil
	}

	note := fmt.Sprintf("Status changed from %s to %s", from, to)
	if err := d.orders.UpdateStatus(ctx, order.ID, from, to, note); err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = to

	observability.MeterFromContext(ctx).Count("order.status.changed", 1, sentry.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
	d.emit(ctx, order, from, to, note, actor)
	return true, nil
}

func (d *StatusDispatcher) emit(ctx context.Context, order *models.Order, from, to models.OrderStatus, note string, actor *uuid.UUID) {
	logger := d.loggerFromContext(ctx)
	metadata := map[string]any{
		"order_id": order.ID.String(),
		"from":     string(from),
		"to":       string(to),
	}

	if err := d.notifier.Notify(ctx, models.Notification{
		UserID:   order.UserID,
		Subject:  "Order status updated",
		Message:  fmt.Sprintf("Your order %s status changed to %s", order.ID, to.Label()),
		Priority: models.PriorityMedium,
		Category: "order",
		Metadata: metadata,
	}); err != nil {
		logger.Warn("failed to queue order status notification", "error", err, "order_id", order.ID)
	}

	if err := d.notifier.NotifyStaff(ctx, models.Notification{
		Subject:  "Order status updated",
		Message:  fmt.Sprintf("Order %s: %s", order.ID, note),
		Priority: models.PriorityLow,
		Category: "order",
		Metadata: metadata,
	}); err != nil {
		logger.Warn("failed to queue staff status notification", "error", err, "order_id", order.ID)
	}

	if err := d.audit.Log(ctx, audit.Event{
		UserID:     actor,
		Action:     models.AuditUpdate,
		Priority:   models.PriorityMedium,
		Object:     models.Ref(models.KindOrder, order.ID),
		ObjectRepr: fmt.Sprintf("Order %s", order.ID),
		Changes:    map[string]any{"status": map[string]any{"from": string(from), "to": string(to)}},
	}); err != nil {
		logger.Warn("failed to record order status audit entry", "error", err, "order_id", order.ID)
	}
}
