package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/auth"
	"github.com/gitshopapp/shopcore/internal/cache"
	"github.com/gitshopapp/shopcore/internal/config"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/notify"
	"github.com/gitshopapp/shopcore/internal/services"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeCheckout struct {
	result *services.CheckoutResult
	err    error
	calls  int
	input  services.CheckoutInput
}

func (f *fakeCheckout) Checkout(_ context.Context, input services.CheckoutInput) (*services.CheckoutResult, error) {
	f.calls++
	f.input = input
	return f.result, f.err
}

type fakePayments struct {
	mu           sync.Mutex
	target       string
	callbackErr  error
	redirect     *services.GatewayRedirect
	startErr     error
	reverified   *models.Payment
	reverifyErr  error
	settled      []string
	settleErr    error
	standalone   services.StandalonePaymentInput
	trackingSeen string
}

func (f *fakePayments) HandleCallback(_ context.Context, trackingCode string) (string, error) {
	f.trackingSeen = trackingCode
	return f.target, f.callbackErr
}

func (f *fakePayments) StartStandalone(_ context.Context, _ uuid.UUID, input services.StandalonePaymentInput) (*services.GatewayRedirect, error) {
	f.standalone = input
	return f.redirect, f.startErr
}

func (f *fakePayments) Reverify(context.Context, uuid.UUID) (*models.Payment, error) {
	return f.reverified, f.reverifyErr
}

func (f *fakePayments) SettleByTrackingCode(_ context.Context, trackingCode string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = append(f.settled, trackingCode)
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	return &models.Payment{ID: uuid.New(), TransactionID: trackingCode, Status: models.PaymentStatusSuccess}, nil
}

func (f *fakePayments) settledCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.settled...)
}

type fakeOrders struct {
	order  *models.Order
	err    error
	update services.OrderUpdate
	actor  services.Actor
}

func (f *fakeOrders) Get(_ context.Context, actor services.Actor, _ uuid.UUID) (*models.Order, error) {
	f.actor = actor
	return f.order, f.err
}

func (f *fakeOrders) Update(_ context.Context, actor services.Actor, _ uuid.UUID, update services.OrderUpdate) (*models.Order, error) {
	f.actor = actor
	f.update = update
	return f.order, f.err
}

type fakeRefunds struct {
	refund  *models.Refund
	err     error
	decided uuid.UUID
	request services.RefundRequest
}

func (f *fakeRefunds) Request(_ context.Context, _ services.Actor, req services.RefundRequest) (*models.Refund, error) {
	f.request = req
	return f.refund, f.err
}

func (f *fakeRefunds) Approve(_ context.Context, actor services.Actor, id uuid.UUID) (*models.Refund, error) {
	if !actor.Staff {
		return nil, services.ErrForbidden
	}
	f.decided = id
	return f.refund, f.err
}

func (f *fakeRefunds) Reject(_ context.Context, actor services.Actor, id uuid.UUID) (*models.Refund, error) {
	if !actor.Staff {
		return nil, services.ErrForbidden
	}
	f.decided = id
	return f.refund, f.err
}

type fakeAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeAudit) Log(_ context.Context, ev audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAudit) all() []audit.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Event(nil), f.events...)
}

const testWebhookSecret = "whsec_test_secret"

type testHarness struct {
	h        *Handlers
	checkout *fakeCheckout
	payments *fakePayments
	orders   *fakeOrders
	refunds  *fakeRefunds
	audit    *fakeAudit
	cache    cache.Provider
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier, err := auth.NewVerifier(strings.Repeat("s", 32), "shopcore")
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	provider, err := cache.NewMemoryProvider(0)
	if err != nil {
		t.Fatalf("NewMemoryProvider() error = %v", err)
	}

	th := &testHarness{
		checkout: &fakeCheckout{},
		payments: &fakePayments{},
		orders:   &fakeOrders{},
		refunds:  &fakeRefunds{},
		audit:    &fakeAudit{},
		cache:    provider,
	}

	h, err := New(Dependencies{
		Config: &config.Config{
			BaseURL:             "https://shop.example.com",
			StripeWebhookSecret: testWebhookSecret,
			RateLimitRPS:        100,
			RateLimitBurst:      100,
		},
		DB:            fakePinger{},
		Checkout:      th.checkout,
		Payments:      th.payments,
		Orders:        th.orders,
		Refunds:       th.refunds,
		Verifier:      verifier,
		CacheProvider: provider,
		Hub:           notify.NewHub(logger),
		Audit:         th.audit,
		StripeRouter:  NewStripeEventRouter(th.payments, logger),
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	th.h = h
	return th
}

func asUser(r *http.Request, userID uuid.UUID, staff bool) *http.Request {
	return r.WithContext(auth.WithPrincipal(r.Context(), auth.Principal{UserID: userID, Staff: staff}))
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func samplePayment() *models.Payment {
	return &models.Payment{
		ID:            uuid.MustParse("7b0f4a8e-3d54-4f0e-9d7c-8a51d1f1a001"),
		UserID:        uuid.New(),
		Amount:        decimal.RequireFromString("89"),
		Currency:      models.CurrencyIRR,
		Status:        models.PaymentStatusPending,
		TransactionID: "TC-1001",
	}
}

func sampleInitiation() *gateway.Initiation {
	return &gateway.Initiation{
		Token:        "tok-1001",
		TrackingCode: "TC-1001",
		RedirectURL:  "https://bank.example/pay",
		Method:       http.MethodPost,
		Params:       map[string]string{"token": "tok-1001"},
	}
}

var errBoom = errors.New("boom")

func errEmptyCart() error { return fmt.Errorf("checkout: %w", services.ErrEmptyCart) }

func errCoupon(reason string) error {
	return fmt.Errorf("checkout: %w", &services.InvalidCouponError{Reason: reason})
}

func errForbidden() error { return fmt.Errorf("order: %w", services.ErrForbidden) }

func errNotFound() error { return fmt.Errorf("order: %w", db.ErrNotFound) }

func errTransition() error { return fmt.Errorf("refund: %w", db.ErrInvalidStatusTransition) }

func errGateway() error { return fmt.Errorf("initiate: %w", gateway.ErrGatewayUnavailable) }
