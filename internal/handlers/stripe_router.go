package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/observability"
	"github.com/gitshopapp/shopcore/internal/services"
	stripeclient "github.com/gitshopapp/shopcore/internal/stripe"
)

// PaymentSettler settles the pending payment behind a gateway tracking code.
type PaymentSettler interface {
	SettleByTrackingCode(ctx context.Context, trackingCode string) (*models.Payment, error)
}

// StripeEventRouter turns Stripe checkout session events into payment
// settlements. The callback redirect and the webhook race; whichever comes
// second finds the payment already settled.
type StripeEventRouter struct {
	payments PaymentSettler
	logger   *slog.Logger
}

func NewStripeEventRouter(payments PaymentSettler, logger *slog.Logger) *StripeEventRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeEventRouter{
		payments: payments,
		logger:   logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if event == nil {
		recordFailed("missing_event")
		return fmt.Errorf("missing stripe event")
	}
	if event.Data == nil {
		recordFailed("missing_event_data")
		return fmt.Errorf("missing stripe event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	logger := logging.FromContext(ctx, r.logger)

	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired", "checkout.session.async_payment_failed":
		sess, err := stripeclient.CheckoutSessionFromEvent(event)
		if err != nil {
			recordFailed("invalid_checkout_session")
			return err
		}
		if !ownedSession(sess) {
			logger.Info("ignoring checkout session not created by this service", "session_id", sess.ID)
			meter.Count("webhook.router.unhandled", 1)
			span.Status = sentry.SpanStatusOK
			return nil
		}

		payment, err := r.payments.SettleByTrackingCode(ctx, sess.ID)
		if errors.Is(err, services.ErrUnknownTransaction) {
			logger.Warn("checkout session has no matching payment", "session_id", sess.ID)
			meter.Count("webhook.router.unmatched", 1)
			span.Status = sentry.SpanStatusOK
			return nil
		}
		if err != nil {
			recordFailed("settle_failed")
			return fmt.Errorf("failed to settle checkout session %s: %w", sess.ID, err)
		}

		logger.Info("checkout session settled", "session_id", sess.ID, "payment_id", payment.ID, "status", payment.Status)
		meter.Count("webhook.router.processed", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	default:
		logger.Info("unhandled Stripe event type", "type", event.Type)
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}
}

// ownedSession reports whether the session carries the payment id the
// gateway adapter attached when it created it.
func ownedSession(sess *stripeapi.CheckoutSession) bool {
	if sess.ClientReferenceID != "" {
		if _, err := uuid.Parse(sess.ClientReferenceID); err == nil {
			return true
		}
	}
	_, ok := sess.Metadata["payment_id"]
	return ok
}
