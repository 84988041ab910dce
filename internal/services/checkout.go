package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/coupon"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/observability"
	"github.com/gitshopapp/shopcore/internal/pricing"
)

const (
	reasonCouponMissing       = "Coupon does not exist."
	reasonCouponMisconfigured = "Coupon is not available."
)

type CheckoutServiceConfig struct {
	Carts           CartStore
	Coupons         CouponStore
	Validator       CouponValidator
	Calculator      *pricing.Calculator
	Orders          OrderStore
	Gateways        GatewayConfigs
	Payments        *PaymentService
	Notifier        Notifier
	Audit           AuditLogger
	Metrics         BusinessMetrics
	DefaultCurrency models.Currency
	Logger          *slog.Logger
}

// CheckoutService turns a user's cart into an order with a pending payment
// and hands the payer off to the gateway.
type CheckoutService struct {
	carts           CartStore
	coupons         CouponStore
	validator       CouponValidator
	calculator      *pricing.Calculator
	orders          OrderStore
	gateways        GatewayConfigs
	payments        *PaymentService
	notifier        Notifier
	audit           AuditLogger
	metrics         BusinessMetrics
	defaultCurrency models.Currency
	logger          *slog.Logger
}

func NewCheckoutService(cfg CheckoutServiceConfig) *CheckoutService {
	if cfg.Calculator == nil {
		cfg.Calculator = pricing.NewCalculator()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = models.CurrencyIRR
	}
	return &CheckoutService{
		carts:           cfg.Carts,
		coupons:         cfg.Coupons,
		validator:       cfg.Validator,
		calculator:      cfg.Calculator,
		orders:          cfg.Orders,
		gateways:        cfg.Gateways,
		payments:        cfg.Payments,
		notifier:        cfg.Notifier,
		audit:           cfg.Audit,
		metrics:         metricsOrNoop(cfg.Metrics),
		defaultCurrency: cfg.DefaultCurrency,
		logger:          cfg.Logger,
	}
}

func (s *CheckoutService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// CheckoutInput names the coupon by id or by its public code, not both.
type CheckoutInput struct {
	UserID          uuid.UUID
	CouponID        *uuid.UUID
	CouponCode      string
	ShippingAddress *models.Address
	BillingAddress  *models.Address
	Metadata        map[string]any
}

type CheckoutResult struct {
	Order      *models.Order
	Payment    *models.Payment
	Initiation *gateway.Initiation
}

// Checkout converts the cart in order: snapshot items, validate the coupon,
// price the order, persist order, payment and coupon redemption together,
// initiate the gateway, and only then drop the cart.
func (s *CheckoutService) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.checkout",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Checkout"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) { observability.CountFailure(ctx, "checkout.failed", reason) }
	meter.Count("checkout.started", 1)

	input.CouponCode = strings.TrimSpace(input.CouponCode)
	if input.CouponID != nil && input.CouponCode != "" {
		recordFailure("invalid_input")
		return nil, invalidInput("provide coupon_id or coupon_code, not both")
	}

	cart, err := s.carts.GetByUser(ctx, input.UserID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && cart.Empty()) {
		recordFailure("empty_cart")
		return nil, ErrEmptyCart
	}
	if err != nil {
		recordFailure("cart_lookup_failed")
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	order := &models.Order{
		UserID:          input.UserID,
		Status:          models.OrderStatusPending,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
		Metadata:        input.Metadata,
		Items:           snapshotItems(cart.Items),
	}

	var applied *models.Coupon
	var discount *models.Discount
	if input.CouponID != nil || input.CouponCode != "" {
		applied, err = s.validCoupon(ctx, input.CouponID, input.CouponCode, order)
		if err != nil {
			var invalid *InvalidCouponError
			if errors.As(err, &invalid) {
				recordFailure("invalid_coupon")
			} else {
				recordFailure("coupon_lookup_failed")
			}
			return nil, err
		}
		discount = &applied.Discount
	}
	s.calculator.Apply(order, discount)

	cfg, err := s.gateways.FirstActive(ctx)
	if err != nil {
		recordFailure("no_active_gateway")
		return nil, fmt.Errorf("%w: no active gateway: %v", gateway.ErrGatewayUnavailable, err)
	}

	payment := &models.Payment{
		UserID:    input.UserID,
		GatewayID: cfg.ID,
		Amount:    order.TotalAmount,
		Currency:  s.defaultCurrency,
		Status:    models.PaymentStatusPending,
		Metadata:  map[string]any{"source": "checkout"},
	}
	rec := db.CheckoutRecord{Order: order, Payment: payment}
	if applied != nil {
		rec.CouponID = &applied.ID
	}

	if err := s.orders.CreateCheckout(ctx, rec); err != nil {
		switch {
		case errors.Is(err, db.ErrCouponExhausted):
			recordFailure("invalid_coupon")
			return nil, &InvalidCouponError{Reason: coupon.ReasonMaxUsage}
		case errors.Is(err, db.ErrCouponAlreadyUsed):
			recordFailure("invalid_coupon")
			return nil, &InvalidCouponError{Reason: coupon.ReasonOncePerUser}
		}
		recordFailure("persist_failed")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	logger.Info("order created", "order_id", order.ID, "payment_id", payment.ID, "total", order.TotalAmount.StringFixed(2))

	if !order.TotalAmount.IsPositive() {
		return s.completeZeroTotal(ctx, order, payment, cart, applied)
	}

	initiation, err := s.payments.Initiate(ctx, payment, cfg, s.payments.payerFor(ctx, input.UserID), fmt.Sprintf("Order %s", order.ID))
	if err != nil {
		recordFailure("gateway_initiate_failed")
		if applied != nil {
			if releaseErr := s.coupons.Release(context.WithoutCancel(ctx), applied.ID, order.ID); releaseErr != nil {
				logger.Error("failed to release coupon after initiate failure", "error", releaseErr, "coupon_id", applied.ID, "order_id", order.ID)
			}
		}
		return nil, err
	}

	if err := s.carts.Delete(ctx, cart.ID); err != nil {
		logger.Error("failed to delete cart after checkout", "error", err, "cart_id", cart.ID)
	}

	s.emitCheckout(ctx, order, applied)
	meter.Count("checkout.completed", 1)
	s.metrics.RecordCheckout(ctx, payment.Currency, order.TotalAmount, applied != nil)

	return &CheckoutResult{Order: order, Payment: payment, Initiation: initiation}, nil
}

// completeZeroTotal finishes a checkout whose discount covers the whole order.
// No gateway is involved: the payment settles immediately, which moves the
// order to processing through the status dispatcher.
func (s *CheckoutService) completeZeroTotal(ctx context.Context, order *models.Order, payment *models.Payment, cart *models.Cart, applied *models.Coupon) (*CheckoutResult, error) {
	logger := s.loggerFromContext(ctx)
	if err := s.payments.SettleZeroAmount(ctx, payment); err != nil {
		observability.CountFailure(ctx, "checkout.failed", "zero_total_settle_failed")
		return nil, fmt.Errorf("failed to settle zero total order: %w", err)
	}
	logger.Info("zero total order settled without gateway", "order_id", order.ID, "payment_id", payment.ID)
	if current, err := s.orders.GetByID(ctx, order.ID); err == nil {
		order = current
	} else {
		logger.Warn("failed to reload settled order", "error", err, "order_id", order.ID)
	}

	if err := s.carts.Delete(ctx, cart.ID); err != nil {
		logger.Error("failed to delete cart after checkout", "error", err, "cart_id", cart.ID)
	}
	s.emitCheckout(ctx, order, applied)
	observability.MeterFromContext(ctx).Count("checkout.completed", 1)
	s.metrics.RecordCheckout(ctx, payment.Currency, order.TotalAmount, applied != nil)

	return &CheckoutResult{Order: order, Payment: payment}, nil
}

func snapshotItems(cartItems []models.CartItem) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(cartItems))
	for _, ci := range cartItems {
		items = append(items, models.OrderItem{
			VariantID:   ci.VariantID,
			ProductID:   ci.ProductID,
			CategoryID:  ci.CategoryID,
			Name:        ci.Name,
			Quantity:    ci.Quantity,
			PriceAtTime: ci.UnitPrice(),
		})
	}
	return items
}

// validCoupon checks the coupon against the undiscounted subtotal. A stored
// coupon whose definition is broken is refused rather than priced.
func (s *CheckoutService) validCoupon(ctx context.Context, couponID *uuid.UUID, code string, order *models.Order) (*models.Coupon, error) {
	var (
		c   *models.Coupon
		err error
	)
	if couponID != nil {
		c, err = s.coupons.GetByID(ctx, *couponID)
	} else {
		c, err = s.coupons.GetByCode(ctx, code)
	}
	if errors.Is(err, db.ErrNotFound) {
		return nil, &InvalidCouponError{Reason: reasonCouponMissing}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load coupon: %w", err)
	}
	if err := coupon.CheckDefinition(c); err != nil {
		s.loggerFromContext(ctx).Warn("refusing coupon with invalid definition", "error", err, "coupon_id", c.ID)
		return nil, &InvalidCouponError{Reason: reasonCouponMisconfigured}
	}

	subtotal := s.calculator.Calculate(order.Items, nil).Subtotal
	ok, reason, err := s.validator.Validate(ctx, c, subtotal, order.UserID, order.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to validate coupon: %w", err)
	}
	if !ok {
		return nil, &InvalidCouponError{Reason: reason}
	}
	return c, nil
}

func (s *CheckoutService) emitCheckout(ctx context.Context, order *models.Order, applied *models.Coupon) {
	logger := s.loggerFromContext(ctx)

	changes := map[string]any{
		"status":          string(order.Status),
		"subtotal_amount": order.SubtotalAmount.StringFixed(2),
		"discount_amount": order.DiscountAmount.StringFixed(2),
		"total_amount":    order.TotalAmount.StringFixed(2),
		"items":           len(order.Items),
	}
	if applied != nil {
		changes["coupon"] = applied.Code
	}
	if err := s.audit.Log(ctx, audit.Event{
		UserID:     &order.UserID,
		Action:     models.AuditCreate,
		Object:     models.Ref(models.KindOrder, order.ID),
		ObjectRepr: fmt.Sprintf("Order %s", order.ID),
		Changes:    changes,
	}); err != nil {
		logger.Warn("failed to record checkout audit entry", "error", err, "order_id", order.ID)
	}

	if applied == nil {
		return
	}
	if err := s.notifier.Notify(ctx, models.Notification{
		UserID:   order.UserID,
		Subject:  "Coupon applied",
		Message:  fmt.Sprintf("Coupon %s applied to your order %s for a %s discount.", applied.Code, order.ID, order.DiscountAmount.StringFixed(2)),
		Priority: models.PriorityLow,
		Category: "coupon",
		Metadata: map[string]any{"order_id": order.ID.String(), "coupon_id": applied.ID.String()},
	}); err != nil {
		logger.Warn("failed to queue coupon notification", "error", err, "order_id", order.ID)
	}
}
