package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/coupon"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/models"
)

var fixedNow = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type fakeCarts struct {
	cart    *models.Cart
	deleted []uuid.UUID
}

func (f *fakeCarts) GetByUser(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	if f.cart == nil || f.cart.UserID == nil || *f.cart.UserID != userID {
		return nil, fmt.Errorf("cart: %w", db.ErrNotFound)
	}
	return f.cart, nil
}

func (f *fakeCarts) Delete(_ context.Context, cartID uuid.UUID) error {
	f.deleted = append(f.deleted, cartID)
	return nil
}

type fakeCoupons struct {
	byID     map[uuid.UUID]models.Coupon
	released []uuid.UUID
}

func (f *fakeCoupons) GetByID(_ context.Context, id uuid.UUID) (*models.Coupon, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("coupon: %w", db.ErrNotFound)
	}
	return &c, nil
}

func (f *fakeCoupons) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	for _, c := range f.byID {
		if c.Code == code {
			c := c
			return &c, nil
		}
	}
	return nil, fmt.Errorf("coupon: %w", db.ErrNotFound)
}

func (f *fakeCoupons) Release(_ context.Context, couponID, _ uuid.UUID) error {
	f.released = append(f.released, couponID)
	return nil
}

type fakeUsages struct {
	used map[uuid.UUID]bool
}

func (f *fakeUsages) HasUsage(_ context.Context, couponID, _ uuid.UUID) (bool, error) {
	return f.used[couponID], nil
}

type fakePayments struct {
	byID      map[uuid.UUID]models.Payment
	txs       []models.Transaction
	createErr error
}

func newFakePayments() *fakePayments {
	return &fakePayments{byID: map[uuid.UUID]models.Payment{}}
}

func (f *fakePayments) put(p models.Payment) {
	f.byID[p.ID] = p
}

func (f *fakePayments) Create(_ context.Context, p *models.Payment) error {
	if f.createErr != nil {
		return f.createErr
	}
	p.ID = uuid.New()
	if p.TransactionID == "" {
		p.TransactionID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	f.put(*p)
	return nil
}

func (f *fakePayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("payment: %w", db.ErrNotFound)
	}
	return &p, nil
}

func (f *fakePayments) GetByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	for _, p := range f.byID {
		if p.TransactionID == transactionID {
			p := p
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment: %w", db.ErrNotFound)
}

func (f *fakePayments) SetGatewayReference(_ context.Context, id uuid.UUID, token, trackingCode string) error {
	p, ok := f.byID[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return db.ErrInvalidStatusTransition
	}
	p.Token = token
	p.TransactionID = trackingCode
	f.put(p)
	return nil
}

func (f *fakePayments) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.PaymentStatus) error {
	p, ok := f.byID[id]
	if !ok || p.Status != from {
		return db.ErrInvalidStatusTransition
	}
	p.Status = to
	f.put(p)
	return nil
}

func (f *fakePayments) AddTransaction(_ context.Context, t *models.Transaction) error {
	t.ID = uuid.New()
	f.txs = append(f.txs, *t)
	return nil
}

func (f *fakePayments) transactions(paymentID uuid.UUID) []models.Transaction {
	var out []models.Transaction
	for _, t := range f.txs {
		if t.PaymentID == paymentID {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakePayments) status(t *testing.T, id uuid.UUID) models.PaymentStatus {
	t.Helper()
	p, ok := f.byID[id]
	if !ok {
		t.Fatalf("payment %s not stored", id)
	}
	return p.Status
}

type fakeOrders struct {
	payments  *fakePayments
	byID      map[uuid.UUID]models.Order
	history   []models.OrderStatusHistory
	redeemed  []uuid.UUID
	couponErr error
}

func newFakeOrders(payments *fakePayments) *fakeOrders {
	return &fakeOrders{payments: payments, byID: map[uuid.UUID]models.Order{}}
}

func (f *fakeOrders) put(o models.Order) {
	f.byID[o.ID] = o
}

func (f *fakeOrders) CreateCheckout(_ context.Context, rec db.CheckoutRecord) error {
	if rec.CouponID != nil && f.couponErr != nil {
		return f.couponErr
	}

	payment := rec.Payment
	payment.ID = uuid.New()
	payment.TransactionID = uuid.NewString()

	order := rec.Order
	order.ID = uuid.New()
	order.PaymentID = &payment.ID
	order.CouponID = rec.CouponID
	for i := range order.Items {
		order.Items[i].ID = uuid.New()
		order.Items[i].OrderID = order.ID
	}
	payment.Object = models.Ref(models.KindOrder, order.ID)

	f.payments.put(*payment)
	f.put(*order)
	f.history = append(f.history, models.OrderStatusHistory{OrderID: order.ID, Status: order.Status, Note: "Initial order status"})
	if rec.CouponID != nil {
		f.redeemed = append(f.redeemed, *rec.CouponID)
	}
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("order: %w", db.ErrNotFound)
	}
	return &o, nil
}

func (f *fakeOrders) GetByPaymentID(_ context.Context, paymentID uuid.UUID) (*models.Order, error) {
	for _, o := range f.byID {
		if o.PaymentID != nil && *o.PaymentID == paymentID {
			o := o
			return &o, nil
		}
	}
	return nil, fmt.Errorf("order: %w", db.ErrNotFound)
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus, note string) error {
	o, ok := f.byID[id]
	if !ok || o.Status != from {
		return db.ErrInvalidStatusTransition
	}
	o.Status = to
	f.put(o)
	f.history = append(f.history, models.OrderStatusHistory{OrderID: id, Status: to, Note: note})
	return nil
}

func (f *fakeOrders) UpdateAddresses(_ context.Context, id uuid.UUID, shipping, billing *models.Address) error {
	o, ok := f.byID[id]
	if !ok {
		return fmt.Errorf("order: %w", db.ErrNotFound)
	}
	if shipping != nil {
		o.ShippingAddress = shipping
	}
	if billing != nil {
		o.BillingAddress = billing
	}
	f.put(o)
	return nil
}

func (f *fakeOrders) historyFor(orderID uuid.UUID) []models.OrderStatusHistory {
	var out []models.OrderStatusHistory
	for _, h := range f.history {
		if h.OrderID == orderID {
			out = append(out, h)
		}
	}
	return out
}

func (f *fakeOrders) status(t *testing.T, id uuid.UUID) models.OrderStatus {
	t.Helper()
	o, ok := f.byID[id]
	if !ok {
		t.Fatalf("order %s not stored", id)
	}
	return o.Status
}

type fakeRefunds struct {
	payments *fakePayments
	byID     map[uuid.UUID]models.Refund
}

func (f *fakeRefunds) Create(_ context.Context, r *models.Refund) error {
	r.ID = uuid.New()
	r.Status = models.RefundPending
	f.byID[r.ID] = *r
	return nil
}

func (f *fakeRefunds) GetByID(_ context.Context, id uuid.UUID) (*models.Refund, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("refund: %w", db.ErrNotFound)
	}
	return &r, nil
}

func (f *fakeRefunds) Approve(ctx context.Context, id uuid.UUID) error {
	r, ok := f.byID[id]
	if !ok || r.Status != models.RefundPending {
		return db.ErrInvalidStatusTransition
	}
	if err := f.payments.UpdateStatus(ctx, r.PaymentID, models.PaymentStatusSuccess, models.PaymentStatusRefunded); err != nil {
		return err
	}
	r.Status = models.RefundApproved
	f.byID[id] = r
	return nil
}

func (f *fakeRefunds) Reject(_ context.Context, id uuid.UUID) error {
	r, ok := f.byID[id]
	if !ok || r.Status != models.RefundPending {
		return db.ErrInvalidStatusTransition
	}
	r.Status = models.RefundRejected
	f.byID[id] = r
	return nil
}

type fakeGateways struct {
	cfg *models.GatewayConfig
}

func (f *fakeGateways) FirstActive(context.Context) (*models.GatewayConfig, error) {
	if f.cfg == nil {
		return nil, fmt.Errorf("gateway: %w", db.ErrNotFound)
	}
	return f.cfg, nil
}

func (f *fakeGateways) GetByID(_ context.Context, id uuid.UUID) (*models.GatewayConfig, error) {
	if f.cfg == nil || f.cfg.ID != id {
		return nil, fmt.Errorf("gateway: %w", db.ErrNotFound)
	}
	return f.cfg, nil
}

type fakeAdapter struct {
	initErr      error
	lookupErr    error
	verification *gateway.Verification
	verifyErr    error

	lastInitiate gateway.InitiateRequest
	verifyCalls  int
}

func (f *fakeAdapter) Initiate(_ context.Context, req gateway.InitiateRequest) (*gateway.Initiation, error) {
	f.lastInitiate = req
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &gateway.Initiation{
		Token:        "tok-" + req.PaymentID.String(),
		TrackingCode: "TC-" + req.PaymentID.String(),
		RedirectURL:  "https://bank.example/payment/start",
		Method:       "POST",
		Params:       map[string]string{"token": "tok-" + req.PaymentID.String()},
	}, nil
}

func (f *fakeAdapter) Lookup(_ context.Context, trackingCode string) (*gateway.Record, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return &gateway.Record{TrackingCode: trackingCode, Status: "pending"}, nil
}

func (f *fakeAdapter) Verify(_ context.Context, trackingCode string, _ decimal.Decimal, _ models.Currency) (*gateway.Verification, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	v := *f.verification
	v.Raw = map[string]any{"tracking_code": trackingCode, "status": v.Status}
	return &v, nil
}

type fakeResolver struct {
	adapter gateway.Adapter
}

func (f *fakeResolver) Adapter(*models.GatewayConfig) (gateway.Adapter, error) {
	return f.adapter, nil
}

type fakeUsers struct {
	byID map[uuid.UUID]models.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", db.ErrNotFound)
	}
	return &u, nil
}

type fakeNotifier struct {
	user  []models.Notification
	staff []models.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n models.Notification) error {
	f.user = append(f.user, n)
	return nil
}

func (f *fakeNotifier) NotifyStaff(_ context.Context, n models.Notification) error {
	f.staff = append(f.staff, n)
	return nil
}

func (f *fakeNotifier) findUser(message string) (models.Notification, bool) {
	for _, n := range f.user {
		if n.Message == message {
			return n, true
		}
	}
	return models.Notification{}, false
}

type fakeAudit struct {
	events []audit.Event
}

func (f *fakeAudit) Log(_ context.Context, ev audit.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAudit) failed() []audit.Event {
	var out []audit.Event
	for _, ev := range f.events {
		if ev.Status == models.AuditFailed {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	t *testing.T

	userID  uuid.UUID
	staffID uuid.UUID
	gateway *models.GatewayConfig

	carts    *fakeCarts
	coupons  *fakeCoupons
	usages   *fakeUsages
	payments *fakePayments
	orders   *fakeOrders
	refunds  *fakeRefunds
	adapter  *fakeAdapter
	notifier *fakeNotifier
	audit    *fakeAudit

	statuses   *StatusDispatcher
	paymentSvc *PaymentService
	checkout   *CheckoutService
	refundSvc  *RefundService
	orderSvc   *OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:       t,
		userID:  uuid.New(),
		staffID: uuid.New(),
		gateway: &models.GatewayConfig{
			ID:          uuid.New(),
			Name:        "bank",
			Provider:    gateway.ProviderBank,
			CallbackURL: "https://shop.example/payment/callback/",
			IsActive:    true,
		},
		carts:    &fakeCarts{},
		coupons:  &fakeCoupons{byID: map[uuid.UUID]models.Coupon{}},
		usages:   &fakeUsages{used: map[uuid.UUID]bool{}},
		payments: newFakePayments(),
		adapter:  &fakeAdapter{verification: &gateway.Verification{Success: true, Status: "success", ReferenceID: "REF-1"}},
		notifier: &fakeNotifier{},
		audit:    &fakeAudit{},
	}
	f.orders = newFakeOrders(f.payments)
	f.refunds = &fakeRefunds{payments: f.payments, byID: map[uuid.UUID]models.Refund{}}

	users := &fakeUsers{byID: map[uuid.UUID]models.User{
		f.userID:  {ID: f.userID, Email: "buyer@example.com"},
		f.staffID: {ID: f.staffID, Email: "staff@example.com", IsStaff: true},
	}}
	logger := discardLogger()

	refs := NewRefRegistry()
	refs.Register(models.KindOrder, OrderLookup(f.orders))
	refs.Register(models.KindPayment, PaymentLookup(f.payments))
	refs.Register(models.KindRefund, RefundLookup(f.refunds))

	f.statuses = NewStatusDispatcher(f.orders, f.notifier, f.audit, logger)
	f.paymentSvc = NewPaymentService(PaymentServiceConfig{
		Payments: f.payments,
		Gateways: &fakeGateways{cfg: f.gateway},
		Adapters: &fakeResolver{adapter: f.adapter},
		Users:    users,
		Refs:     refs,
		Statuses: f.statuses,
		Notifier: f.notifier,
		Audit:    f.audit,
		Timeout:  time.Second,
		Logger:   logger,
	})
	f.checkout = NewCheckoutService(CheckoutServiceConfig{
		Carts:     f.carts,
		Coupons:   f.coupons,
		Validator: coupon.NewValidator(f.usages).WithClock(func() time.Time { return fixedNow }),
		Orders:    f.orders,
		Gateways:  &fakeGateways{cfg: f.gateway},
		Payments:  f.paymentSvc,
		Notifier:  f.notifier,
		Audit:     f.audit,
		Logger:    logger,
	})
	f.refundSvc = NewRefundService(f.refunds, f.payments, f.statuses, f.notifier, f.audit, nil, logger)
	f.orderSvc = NewOrderService(f.orders, f.statuses, f.audit, logger)
	return f
}

func (f *fixture) fillCart(items ...models.CartItem) {
	f.carts.cart = &models.Cart{ID: uuid.New(), UserID: &f.userID, Items: items}
}

func cartItem(base, additional string, qty int) models.CartItem {
	return models.CartItem{
		ID:              uuid.New(),
		VariantID:       uuid.New(),
		ProductID:       uuid.New(),
		Name:            "Tee - Large",
		Quantity:        qty,
		BasePrice:       dec(base),
		AdditionalPrice: dec(additional),
	}
}

func (f *fixture) addCoupon(c models.Coupon) uuid.UUID {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	f.coupons.byID[c.ID] = c
	return c.ID
}

func summerCoupon() models.Coupon {
	minAmount := dec("50")
	return models.Coupon{
		Code:           "SUMMER20",
		Discount:       models.Discount{ID: uuid.New(), Type: models.DiscountPercentage, Value: dec("20")},
		ValidFrom:      fixedNow.Add(-24 * time.Hour),
		ValidUntil:     fixedNow.Add(24 * time.Hour),
		MinOrderAmount: &minAmount,
		IsActive:       true,
	}
}

// checkoutOne places an order for a single 100.00 item and returns it.
func (f *fixture) checkoutOne(t *testing.T) *CheckoutResult {
	t.Helper()
	f.fillCart(cartItem("90.00", "10.00", 1))
	result, err := f.checkout.Checkout(context.Background(), CheckoutInput{UserID: f.userID})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	return result
}
