// Package stripe creates and inspects Stripe Checkout sessions.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v84"
)

// ErrSessionNotFound is returned when Stripe has no session with the given id.
var ErrSessionNotFound = errors.New("checkout session not found")

type Client struct {
	client *stripeapi.Client
}

func NewClient(secretKey string) *Client {
	return &Client{client: stripeapi.NewClient(secretKey)}
}

type CheckoutSessionParams struct {
	PaymentID     string
	Description   string
	AmountMinor   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CreateCheckoutSession opens a one-line hosted checkout for a payment.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if params.AmountMinor <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	sessionParams := &stripeapi.CheckoutSessionCreateParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		SuccessURL:        stripeapi.String(params.SuccessURL),
		CancelURL:         stripeapi.String(params.CancelURL),
		ClientReferenceID: stripeapi.String(params.PaymentID),
		LineItems: []*stripeapi.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripeapi.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripeapi.String(strings.ToLower(params.Currency)),
					ProductData: &stripeapi.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripeapi.String(params.Description),
					},
					UnitAmount: stripeapi.Int64(params.AmountMinor),
				},
				Quantity: stripeapi.Int64(1),
			},
		},
		Metadata: map[string]string{
			"payment_id": params.PaymentID,
		},
	}
	if params.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripeapi.String(params.CustomerEmail)
	}

	sess, err := c.client.V1CheckoutSessions.Create(ctx, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess, nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string) (*stripeapi.CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	sess, err := c.client.V1CheckoutSessions.Retrieve(ctx, id, nil)
	if err != nil {
		var stripeErr *stripeapi.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripeapi.ErrorCodeResourceMissing {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}
	return sess, nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
func (c *Client) ExpireCheckoutSession(ctx context.Context, id string) (*stripeapi.CheckoutSession, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	sess, err := c.client.V1CheckoutSessions.Expire(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to expire checkout session: %w", err)
	}
	return sess, nil
}

// SessionPaid reports whether Stripe has collected the session's payment.
func SessionPaid(sess *stripeapi.CheckoutSession) bool {
	return sess != nil && sess.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid
}
