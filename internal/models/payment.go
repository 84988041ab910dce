package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Terminal() bool {
	return s != PaymentStatusPending
}

type Currency string

const (
	CurrencyIRR Currency = "IRR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyIRR, CurrencyUSD, CurrencyEUR:
		return true
	default:
		return false
	}
}

// MinorUnits converts an amount to the smallest currency unit. IRR has none.
func (c Currency) MinorUnits(amount decimal.Decimal) int64 {
	if c == CurrencyIRR {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

type Payment struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	GatewayID     uuid.UUID       `json:"gateway_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      Currency        `json:"currency"`
	Status        PaymentStatus   `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Token         string          `json:"-"`
	Object        *ObjectRef      `json:"object,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type TransactionStatus string

const (
	TransactionInitiated TransactionStatus = "initiated"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an append-only record of one gateway round trip.
type Transaction struct {
	ID           uuid.UUID         `json:"id"`
	PaymentID    uuid.UUID         `json:"payment_id"`
	Status       TransactionStatus `json:"status"`
	BankResponse map[string]any    `json:"bank_response,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

type Refund struct {
	ID        uuid.UUID       `json:"id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Status    RefundStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GatewayConfig holds decrypted credentials; encryption happens in the store.
type GatewayConfig struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Provider    string    `json:"provider"`
	MerchantID  string    `json:"-"`
	APIKey      string    `json:"-"`
	BaseURL     string    `json:"base_url,omitempty"`
	CallbackURL string    `json:"callback_url"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
