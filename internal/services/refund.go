package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
)

type RefundService struct {
	refunds  RefundStore
	payments PaymentStore
	statuses *StatusDispatcher
	notifier Notifier
	audit    AuditLogger
	metrics  BusinessMetrics
	logger   *slog.Logger
}

func NewRefundService(refunds RefundStore, payments PaymentStore, statuses *StatusDispatcher, notifier Notifier, auditLogger AuditLogger, metrics BusinessMetrics, logger *slog.Logger) *RefundService {
	return &RefundService{
		refunds:  refunds,
		payments: payments,
		statuses: statuses,
		notifier: notifier,
		audit:    auditLogger,
		metrics:  metricsOrNoop(metrics),
		logger:   logger,
	}
}

func (s *RefundService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type RefundRequest struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
}

// Request opens a pending refund against a successful payment the caller owns.
func (s *RefundService) Request(ctx context.Context, actor Actor, req RefundRequest) (*models.Refund, error) {
	payment, err := s.payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	if payment.Status != models.PaymentStatusSuccess {
		return nil, fmt.Errorf("%w: payment is %s", ErrRefundNotAllowed, payment.Status)
	}
	if !req.Amount.IsPositive() || req.Amount.GreaterThan(payment.Amount) {
		return nil, invalidInput("refund amount must be greater than zero and at most %s", payment.Amount.StringFixed(2))
	}

	refund := &models.Refund{
		PaymentID: payment.ID,
		UserID:    actor.UserID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Status:    models.RefundPending,
	}
	if err := s.refunds.Create(ctx, refund); err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	amount := formatMoney(refund.Amount, payment.Currency)
	s.emit(ctx, refund, audit.Event{
		UserID:   &actor.UserID,
		Action:   models.AuditCreate,
		Priority: models.PriorityHigh,
		Changes:  map[string]any{"amount": refund.Amount.StringFixed(2), "reason": refund.Reason},
	}, "Refund requested", fmt.Sprintf("Refund request for %s received.", amount))

	if err := s.notifier.NotifyStaff(ctx, models.Notification{
		Subject:  "Refund awaiting review",
		Message:  fmt.Sprintf("Refund %s for %s awaits review.", refund.ID, amount),
		Priority: models.PriorityMedium,
		Category: "refund",
		Metadata: map[string]any{"refund_id": refund.ID.String()},
	}); err != nil {
		s.loggerFromContext(ctx).Warn("failed to queue staff refund notification", "error", err, "refund_id", refund.ID)
	}
	return refund, nil
}

// Approve settles a pending refund, moves its payment to refunded and cancels
// the order the payment paid for.
func (s *RefundService) Approve(ctx context.Context, actor Actor, id uuid.UUID) (*models.Refund, error) {
	span := sentry.StartSpan(
		ctx,
		"service.refund.approve",
		sentry.WithOpName("service.refund"),
		sentry.WithDescription("Approve"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if !actor.Staff {
		return nil, ErrForbidden
	}
	refund, err := s.refunds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.refunds.Approve(ctx, id); err != nil {
		return nil, err
	}
	refund.Status = models.RefundApproved

	payment, err := s.payments.GetByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}

	if err := s.statuses.PaymentStatusChanged(ctx, payment); err != nil {
		s.loggerFromContext(ctx).Error("failed to cancel order for refunded payment", "error", err, "payment_id", payment.ID)
	}
	s.metrics.RecordRefund(ctx, payment.Currency, refund.Amount)

	s.emit(ctx, refund, audit.Event{
		UserID:   &actor.UserID,
		Action:   models.AuditUpdate,
		Priority: models.PriorityHigh,
		Changes: map[string]any{
			"status":         map[string]any{"from": string(models.RefundPending), "to": string(models.RefundApproved)},
			"payment_status": string(payment.Status),
		},
	}, "Refund approved", fmt.Sprintf("Refund for %s approved.", formatMoney(refund.Amount, payment.Currency)))
	return refund, nil
}

func (s *RefundService) Reject(ctx context.Context, actor Actor, id uuid.UUID) (*models.Refund, error) {
	if !actor.Staff {
		return nil, ErrForbidden
	}
	refund, err := s.refunds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.refunds.Reject(ctx, id); err != nil {
		return nil, err
	}
	refund.Status = models.RefundRejected

	payment, err := s.payments.GetByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, refund, audit.Event{
		UserID:  &actor.UserID,
		Action:  models.AuditUpdate,
		Changes: map[string]any{"status": map[string]any{"from": string(models.RefundPending), "to": string(models.RefundRejected)}},
	}, "Refund rejected", fmt.Sprintf("Refund for %s rejected.", formatMoney(refund.Amount, payment.Currency)))
	return refund, nil
}

// emit notifies the refund owner and records ev against the refund.
func (s *RefundService) emit(ctx context.Context, refund *models.Refund, ev audit.Event, subject, message string) {
	logger := s.loggerFromContext(ctx)

	if err := s.notifier.Notify(ctx, models.Notification{
		UserID:   refund.UserID,
		Subject:  subject,
		Message:  message,
		Priority: models.PriorityMedium,
		Channels: models.AllChannels,
		Category: "refund",
		Metadata: map[string]any{"refund_id": refund.ID.String(), "payment_id": refund.PaymentID.String()},
	}); err != nil {
		logger.Warn("failed to queue refund notification", "error", err, "refund_id", refund.ID)
	}

	ev.Object = models.Ref(models.KindRefund, refund.ID)
	ev.ObjectRepr = fmt.Sprintf("Refund %s", refund.ID)
	if err := s.audit.Log(ctx, ev); err != nil {
		logger.Warn("failed to record refund audit entry", "error", err, "refund_id", refund.ID)
	}
}

func formatMoney(amount decimal.Decimal, currency models.Currency) string {
	return fmt.Sprintf("%s %s", amount.StringFixed(2), currency)
}
