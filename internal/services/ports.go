package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/models"
)

type CartStore interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Delete(ctx context.Context, cartID uuid.UUID) error
}

type CouponStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	Release(ctx context.Context, couponID, orderID uuid.UUID) error
}

type CouponValidator interface {
	Validate(ctx context.Context, c *models.Coupon, orderAmount decimal.Decimal, userID uuid.UUID, items []models.OrderItem) (bool, string, error)
}

type OrderStore interface {
	CreateCheckout(ctx context.Context, rec db.CheckoutRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, note string) error
	UpdateAddresses(ctx context.Context, id uuid.UUID, shipping, billing *models.Address) error
}

type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	SetGatewayReference(ctx context.Context, id uuid.UUID, token, trackingCode string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.PaymentStatus) error
	AddTransaction(ctx context.Context, t *models.Transaction) error
}

type RefundStore interface {
	Create(ctx context.Context, r *models.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	Approve(ctx context.Context, id uuid.UUID) error
	Reject(ctx context.Context, id uuid.UUID) error
}

type GatewayConfigs interface {
	FirstActive(ctx context.Context) (*models.GatewayConfig, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.GatewayConfig, error)
}

type GatewayResolver interface {
	Adapter(cfg *models.GatewayConfig) (gateway.Adapter, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
	NotifyStaff(ctx context.Context, n models.Notification) error
}

type AuditLogger interface {
	Log(ctx context.Context, ev audit.Event) error
}

// BusinessMetrics receives domain outcomes for the OTel business dashboards.
type BusinessMetrics interface {
	RecordCheckout(ctx context.Context, currency models.Currency, total decimal.Decimal, couponApplied bool)
	RecordPayment(ctx context.Context, provider string, status models.PaymentStatus)
	RecordRefund(ctx context.Context, currency models.Currency, amount decimal.Decimal)
}

type noopMetrics struct{}

func (noopMetrics) RecordCheckout(context.Context, models.Currency, decimal.Decimal, bool) {}
func (noopMetrics) RecordPayment(context.Context, string, models.PaymentStatus)            {}
func (noopMetrics) RecordRefund(context.Context, models.Currency, decimal.Decimal)         {}

func metricsOrNoop(m BusinessMetrics) BusinessMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
