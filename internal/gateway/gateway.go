// Package gateway wraps external payment processors behind a single
// initiate/lookup/verify contract.
package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
)

var (
	// ErrGatewayUnavailable covers network failures, timeouts, 5xx responses and bad configuration.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrTransactionNotFound means the gateway has no record of the tracking code.
	ErrTransactionNotFound = errors.New("gateway transaction not found")
	// ErrVerificationFailed means the gateway answered but the answer could not be trusted.
	ErrVerificationFailed = errors.New("gateway verification failed")
)

type InitiateRequest struct {
	PaymentID   uuid.UUID
	Amount      decimal.Decimal
	Currency    models.Currency
	CallbackURL string
	PayerPhone  string
	PayerEmail  string
	Description string
}

// Initiation is what the payer needs to be sent to the gateway.
type Initiation struct {
	Token        string
	TrackingCode string
	RedirectURL  string
	Method       string
	Params       map[string]string
	Raw          map[string]any
}

// Record is the gateway's view of a previously initiated transaction.
type Record struct {
	TrackingCode string
	AmountMinor  int64
	Status       string
	Raw          map[string]any
}

// Verification is the settled outcome. A bank decline is Success=false with a nil error.
type Verification struct {
	Success     bool
	Status      string
	ReferenceID string
	Raw         map[string]any
}

type Adapter interface {
	Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error)
	Lookup(ctx context.Context, trackingCode string) (*Record, error)
	Verify(ctx context.Context, trackingCode string, amount decimal.Decimal, currency models.Currency) (*Verification, error)
}
