package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/stripe"
)

// CheckoutSessions is the slice of the Stripe client the adapter needs.
type CheckoutSessions interface {
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*stripeapi.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) (*stripeapi.CheckoutSession, error)
}

// StripeAdapter uses the Checkout session id as both token and tracking code.
// Stripe sends the payer back to the callback with ?tc={CHECKOUT_SESSION_ID}.
type StripeAdapter struct {
	sessions CheckoutSessions
}

func NewStripeAdapter(sessions CheckoutSessions) *StripeAdapter {
	return &StripeAdapter{sessions: sessions}
}

func (s *StripeAdapter) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	returnURL := withSessionPlaceholder(req.CallbackURL)
	sess, err := s.sessions.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		PaymentID:     req.PaymentID.String(),
		Description:   req.Description,
		AmountMinor:   req.Currency.MinorUnits(req.Amount),
		Currency:      string(req.Currency),
		CustomerEmail: req.PayerEmail,
		SuccessURL:    returnURL,
		CancelURL:     returnURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	return &Initiation{
		Token:        sess.ID,
		TrackingCode: sess.ID,
		RedirectURL:  sess.URL,
		Method:       http.MethodGet,
		Raw: map[string]any{
			"session_id": sess.ID,
			"status":     string(sess.Status),
		},
	}, nil
}

func (s *StripeAdapter) Lookup(ctx context.Context, trackingCode string) (*Record, error) {
	sess, err := s.session(ctx, trackingCode)
	if err != nil {
		return nil, err
	}
	return &Record{
		TrackingCode: sess.ID,
		AmountMinor:  sess.AmountTotal,
		Status:       string(sess.Status),
		Raw:          sessionSummary(sess),
	}, nil
}

func (s *StripeAdapter) Verify(ctx context.Context, trackingCode string, amount decimal.Decimal, currency models.Currency) (*Verification, error) {
	sess, err := s.session(ctx, trackingCode)
	if err != nil {
		return nil, err
	}

	if want := currency.MinorUnits(amount); sess.AmountTotal != want {
		return nil, fmt.Errorf("%w: session total %d does not match %d", ErrVerificationFailed, sess.AmountTotal, want)
	}
	if !strings.EqualFold(string(sess.Currency), string(currency)) {
		return nil, fmt.Errorf("%w: session currency %s does not match %s", ErrVerificationFailed, sess.Currency, currency)
	}

	// The cancel link returns the payer while the session is still open. It is
	// expired before it settles as failed so it cannot be paid afterwards.
	if sess.Status == stripeapi.CheckoutSessionStatusOpen && !stripe.SessionPaid(sess) {
		sess, err = s.expire(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
	}

	result := &Verification{
		Success: stripe.SessionPaid(sess),
		Status:  string(sess.PaymentStatus),
		Raw:     sessionSummary(sess),
	}
	if sess.PaymentIntent != nil {
		result.ReferenceID = sess.PaymentIntent.ID
	}
	return result, nil
}

func (s *StripeAdapter) session(ctx context.Context, id string) (*stripeapi.CheckoutSession, error) {
	sess, err := s.sessions.GetCheckoutSession(ctx, id)
	if errors.Is(err, stripe.ErrSessionNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return sess, nil
}

func (s *StripeAdapter) expire(ctx context.Context, id string) (*stripeapi.CheckoutSession, error) {
	expired, err := s.sessions.ExpireCheckoutSession(ctx, id)
	if err == nil {
		return expired, nil
	}
	// The payer may have completed the session in the meantime.
	current, getErr := s.session(ctx, id)
	if getErr == nil && current.Status != stripeapi.CheckoutSessionStatusOpen {
		return current, nil
	}
	return nil, fmt.Errorf("%w: could not expire open session %s: %v", ErrGatewayUnavailable, id, err)
}

func sessionSummary(sess *stripeapi.CheckoutSession) map[string]any {
	return map[string]any{
		"session_id":     sess.ID,
		"status":         string(sess.Status),
		"payment_status": string(sess.PaymentStatus),
		"amount_total":   sess.AmountTotal,
		"currency":       string(sess.Currency),
	}
}

// The placeholder is substituted by Stripe and must not be URL-escaped.
func withSessionPlaceholder(callbackURL string) string {
	sep := "?"
	if strings.Contains(callbackURL, "?") {
		sep = "&"
	}
	return callbackURL + sep + "tc={CHECKOUT_SESSION_ID}"
}
