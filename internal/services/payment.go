package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/observability"
)

const (
	DefaultGatewayTimeout = 15 * time.Second
	DefaultPayerPhone     = "+989000000000"

	FailurePath = "/payment/failed/"

	zeroAmountProvider = "zero_amount"
)

func SuccessPath(transactionID string) string {
	return fmt.Sprintf("/payment/success/%s/", transactionID)
}

func FailedPath(transactionID string) string {
	return fmt.Sprintf("/payment/failed/%s/", transactionID)
}

type PaymentServiceConfig struct {
	Payments        PaymentStore
	Gateways        GatewayConfigs
	Adapters        GatewayResolver
	Users           UserDirectory
	Refs            *RefRegistry
	Statuses        *StatusDispatcher
	Notifier        Notifier
	Audit           AuditLogger
	Metrics         BusinessMetrics
	Timeout         time.Duration
	DefaultCurrency models.Currency
	FallbackPhone   string
	Logger          *slog.Logger
}

// PaymentService owns the gateway side of a payment: initiation, verification
// and the Transaction rows that record every round trip.
type PaymentService struct {
	payments        PaymentStore
	gateways        GatewayConfigs
	adapters        GatewayResolver
	users           UserDirectory
	refs            *RefRegistry
	statuses        *StatusDispatcher
	notifier        Notifier
	audit           AuditLogger
	metrics         BusinessMetrics
	timeout         time.Duration
	defaultCurrency models.Currency
	fallbackPhone   string
	logger          *slog.Logger
}

func NewPaymentService(cfg PaymentServiceConfig) *PaymentService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGatewayTimeout
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = models.CurrencyIRR
	}
	if cfg.FallbackPhone == "" {
		cfg.FallbackPhone = DefaultPayerPhone
	}
	if cfg.Refs == nil {
		cfg.Refs = NewRefRegistry()
	}
	return &PaymentService{
		payments:        cfg.Payments,
		gateways:        cfg.Gateways,
		adapters:        cfg.Adapters,
		users:           cfg.Users,
		refs:            cfg.Refs,
		statuses:        cfg.Statuses,
		notifier:        cfg.Notifier,
		audit:           cfg.Audit,
		metrics:         metricsOrNoop(cfg.Metrics),
		timeout:         cfg.Timeout,
		defaultCurrency: cfg.DefaultCurrency,
		fallbackPhone:   cfg.FallbackPhone,
		logger:          cfg.Logger,
	}
}

func (s *PaymentService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// Payer is who the gateway shows the payment to.
type Payer struct {
	Phone string
	Email string
}

func (s *PaymentService) payerFor(ctx context.Context, userID uuid.UUID) Payer {
	payer := Payer{Phone: s.fallbackPhone}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to load payer, using fallback phone", "error", err, "user_id", userID)
		return payer
	}
	if strings.TrimSpace(user.Phone) != "" {
		payer.Phone = user.Phone
	}
	payer.Email = user.Email
	return payer
}

// Initiate starts the external transaction for a pending payment. On success
// the payment carries the gateway token and tracking code; on failure it is
// marked failed and the gateway error is returned.
func (s *PaymentService) Initiate(ctx context.Context, payment *models.Payment, cfg *models.GatewayConfig, payer Payer, description string) (*gateway.Initiation, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.initiate",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("Initiate"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("gateway", cfg.Provider))
	startedAt := time.Now()

	initiation, err := s.callInitiate(ctx, payment, cfg, payer, description)
	meter.Distribution("payment.gateway.initiate.duration", float64(time.Since(startedAt).Milliseconds()), sentry.WithUnit(sentry.UnitMillisecond))
	if err != nil {
		meter.Count("payment.initiate.failed", 1)
		logger.Error("gateway initiate failed", "error", err, "payment_id", payment.ID, "gateway", cfg.Name)
		if failErr := s.failInitiation(ctx, payment, cfg, err); failErr != nil {
			logger.Error("failed to record initiate failure", "error", failErr, "payment_id", payment.ID)
		}
		return nil, err
	}

	if err := s.payments.SetGatewayReference(ctx, payment.ID, initiation.Token, initiation.TrackingCode); err != nil {
		return nil, fmt.Errorf("failed to store gateway reference: %w", err)
	}
	payment.Token = initiation.Token
	payment.TransactionID = initiation.TrackingCode

	if err := s.payments.AddTransaction(ctx, &models.Transaction{
		PaymentID: payment.ID,
		Status:    models.TransactionInitiated,
		BankResponse: map[string]any{
			"token":         initiation.Token,
			"tracking_code": initiation.TrackingCode,
			"redirect_url":  initiation.RedirectURL,
			"response":      initiation.Raw,
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to record initiated transaction: %w", err)
	}

	meter.Count("payment.initiate.succeeded", 1)
	s.logAudit(ctx, audit.Event{
		UserID:     &payment.UserID,
		Action:     models.AuditCreate,
		Object:     models.Ref(models.KindPayment, payment.ID),
		ObjectRepr: fmt.Sprintf("Payment %s", payment.TransactionID),
		Metadata: map[string]any{
			"gateway":       cfg.Name,
			"provider":      cfg.Provider,
			"tracking_code": initiation.TrackingCode,
			"amount":        payment.Amount.StringFixed(2),
			"currency":      string(payment.Currency),
		},
	})
	return initiation, nil
}

func (s *PaymentService) callInitiate(ctx context.Context, payment *models.Payment, cfg *models.GatewayConfig, payer Payer, description string) (*gateway.Initiation, error) {
	adapter, err := s.adapters.Adapter(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	initiation, err := adapter.Initiate(ctx, gateway.InitiateRequest{
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		CallbackURL: cfg.CallbackURL,
		PayerPhone:  payer.Phone,
		PayerEmail:  payer.Email,
		Description: description,
	})
	if err != nil {
		return nil, classifyGatewayError(err)
	}
	if initiation.TrackingCode == "" {
		return nil, fmt.Errorf("%w: gateway returned no tracking code", gateway.ErrGatewayUnavailable)
	}
	return initiation, nil
}

func (s *PaymentService) failInitiation(ctx context.Context, payment *models.Payment, cfg *models.GatewayConfig, cause error) error {
	ctx = context.WithoutCancel(ctx)

	if err := s.payments.AddTransaction(ctx, &models.Transaction{
		PaymentID:    payment.ID,
		Status:       models.TransactionFailed,
		ErrorMessage: cause.Error(),
	}); err != nil {
		return err
	}
	if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusFailed); err != nil {
		return err
	}
	payment.Status = models.PaymentStatusFailed
	s.metrics.RecordPayment(ctx, cfg.Provider, payment.Status)

	s.logAudit(ctx, audit.Event{
		UserID:       &payment.UserID,
		Action:       models.AuditCreate,
		Status:       models.AuditFailed,
		Priority:     models.PriorityHigh,
		Object:       models.Ref(models.KindPayment, payment.ID),
		ObjectRepr:   fmt.Sprintf("Payment %s", payment.TransactionID),
		Metadata:     map[string]any{"gateway": cfg.Name, "provider": cfg.Provider},
		ErrorMessage: cause.Error(),
	})
	return nil
}

// SettleZeroAmount marks a payment with nothing to collect as successful
// without contacting a gateway. The usual settlement side effects still run.
func (s *PaymentService) SettleZeroAmount(ctx context.Context, payment *models.Payment) error {
	if payment.Amount.IsPositive() {
		return invalidInput("payment amount is not zero")
	}
	_, err := s.settle(ctx, payment, zeroAmountProvider, &gateway.Verification{
		Success: true,
		Status:  zeroAmountProvider,
		Raw:     map[string]any{"reason": "nothing to collect"},
	}, nil)
	return err
}

// Verify asks the gateway for the outcome of a pending payment and writes the
// terminal status. Gateway errors settle the payment as failed and are
// recorded rather than returned. Payments that already settled are not
// re-verified.
func (s *PaymentService) Verify(ctx context.Context, payment *models.Payment) (bool, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.verify",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("Verify"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if payment.Status != models.PaymentStatusPending {
		return payment.Status == models.PaymentStatusSuccess, nil
	}

	provider, verification, verifyErr := s.callVerify(ctx, payment)
	return s.settle(ctx, payment, provider, verification, verifyErr)
}

// settle records the outcome of a verification attempt. A non-nil verifyErr
// settles the payment as failed.
func (s *PaymentService) settle(ctx context.Context, payment *models.Payment, provider string, verification *gateway.Verification, verifyErr error) (bool, error) {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	tx := &models.Transaction{
		PaymentID: payment.ID,
		Status:    models.TransactionFailed,
		BankResponse: map[string]any{
			"tracking_code": payment.TransactionID,
			"is_success":    false,
		},
	}
	to := models.PaymentStatusFailed
	switch {
	case verifyErr != nil:
		tx.ErrorMessage = verifyErr.Error()
		logger.Warn("gateway verify failed", "error", verifyErr, "payment_id", payment.ID)
	case verification.Success:
		to = models.PaymentStatusSuccess
		tx.Status = models.TransactionCompleted
		tx.BankResponse["is_success"] = true
		tx.BankResponse["bank_response"] = verification.Raw
		tx.BankResponse["reference_id"] = verification.ReferenceID
	default:
		tx.ErrorMessage = fmt.Sprintf("payment declined with status %q", verification.Status)
		tx.BankResponse["bank_response"] = verification.Raw
	}

	// Settlement writes ignore caller cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := s.payments.AddTransaction(ctx, tx); err != nil {
		return false, fmt.Errorf("failed to record verify transaction: %w", err)
	}

	if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentStatusPending, to); err != nil {
		if !errors.Is(err, db.ErrInvalidStatusTransition) {
			return false, fmt.Errorf("failed to settle payment: %w", err)
		}
		current, loadErr := s.payments.GetByID(ctx, payment.ID)
		if loadErr != nil {
			return false, fmt.Errorf("failed to reload settled payment: %w", loadErr)
		}
		logger.Info("payment settled concurrently", "payment_id", payment.ID, "status", current.Status)
		*payment = *current
		return payment.Status == models.PaymentStatusSuccess, nil
	}
	payment.Status = to

	meter.Count("payment.verified", 1, sentry.WithAttributes(
		attribute.String("status", string(to)),
		attribute.String("gateway", provider),
	))
	s.metrics.RecordPayment(ctx, provider, to)
	s.emitSettlement(ctx, payment, tx)

	if s.statuses != nil {
		if err := s.statuses.PaymentStatusChanged(ctx, payment); err != nil {
			logger.Error("failed to apply order status for payment", "error", err, "payment_id", payment.ID)
		}
	}
	return to == models.PaymentStatusSuccess, nil
}

func (s *PaymentService) callVerify(ctx context.Context, payment *models.Payment) (string, *gateway.Verification, error) {
	cfg, err := s.gateways.GetByID(ctx, payment.GatewayID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: gateway config: %v", gateway.ErrGatewayUnavailable, err)
	}
	adapter, err := s.adapters.Adapter(cfg)
	if err != nil {
		return cfg.Provider, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	verification, err := adapter.Verify(ctx, payment.TransactionID, payment.Amount, payment.Currency)
	if err != nil {
		return cfg.Provider, nil, classifyGatewayError(err)
	}
	return cfg.Provider, verification, nil
}

func (s *PaymentService) emitSettlement(ctx context.Context, payment *models.Payment, tx *models.Transaction) {
	logger := s.loggerFromContext(ctx)
	success := payment.Status == models.PaymentStatusSuccess

	n := models.Notification{
		UserID:   payment.UserID,
		Subject:  "Payment succeeded",
		Message:  fmt.Sprintf("Payment %s succeeded.", payment.TransactionID),
		Priority: models.PriorityMedium,
		Channels: models.AllChannels,
		Category: "payment",
		Metadata: map[string]any{
			"payment_id":     payment.ID.String(),
			"transaction_id": payment.TransactionID,
			"amount":         payment.Amount.StringFixed(2),
			"currency":       string(payment.Currency),
		},
	}
	ev := audit.Event{
		UserID:     &payment.UserID,
		Action:     models.AuditUpdate,
		Object:     models.Ref(models.KindPayment, payment.ID),
		ObjectRepr: fmt.Sprintf("Payment %s", payment.TransactionID),
		Changes:    map[string]any{"status": map[string]any{"from": string(models.PaymentStatusPending), "to": string(payment.Status)}},
	}
	if !success {
		n.Subject = "Payment failed"
		n.Message = fmt.Sprintf("Payment %s failed.", payment.TransactionID)
		n.Priority = models.PriorityHigh
		ev.Status = models.AuditFailed
		ev.Priority = models.PriorityHigh
		ev.ErrorMessage = tx.ErrorMessage
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		logger.Warn("failed to queue payment notification", "error", err, "payment_id", payment.ID)
	}
	s.logAudit(ctx, ev)
}

// HandleCallback settles the payment a gateway redirect refers to and returns
// where to send the payer. It always returns a redirect target; the error
// explains a failure target for logging.
func (s *PaymentService) HandleCallback(ctx context.Context, trackingCode string) (string, error) {
	span := sentry.StartSpan(
		ctx,
		"service.payment.callback",
		sentry.WithOpName("service.payment"),
		sentry.WithDescription("HandleCallback"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) { observability.CountFailure(ctx, "payment.callback.failed", reason) }

	trackingCode = strings.TrimSpace(trackingCode)
	ctx, _ = logging.With(ctx, s.logger, "tracking_code", trackingCode)
	if trackingCode == "" {
		recordFailure("missing_tracking_code")
		s.auditUnknownTransaction(ctx, trackingCode, "Invalid tracking code")
		return FailurePath, fmt.Errorf("%w: missing tracking code", ErrUnknownTransaction)
	}

	payment, err := s.payments.GetByTransactionID(ctx, trackingCode)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.loggerFromContext(ctx).Error("failed to load payment for callback", "error", err)
		}
		recordFailure("unknown_payment")
		s.auditUnknownTransaction(ctx, trackingCode, "Invalid payment or bank record")
		return FailurePath, fmt.Errorf("%w: %s", ErrUnknownTransaction, trackingCode)
	}

	if payment.Status.Terminal() {
		meter.Count("payment.callback.replayed", 1)
		if payment.Status == models.PaymentStatusSuccess {
			return SuccessPath(payment.TransactionID), nil
		}
		return FailedPath(payment.TransactionID), nil
	}

	provider, err := s.lookupRecord(ctx, payment)
	switch {
	case errors.Is(err, gateway.ErrTransactionNotFound), errors.Is(err, db.ErrNotFound):
		recordFailure("unknown_bank_record")
		s.auditUnknownTransaction(ctx, trackingCode, "Invalid payment or bank record")
		return FailurePath, fmt.Errorf("%w: %v", ErrUnknownTransaction, err)
	case err != nil:
		// The gateway could not be asked; the payment settles as failed.
		recordFailure("gateway_unavailable")
		if _, settleErr := s.settle(ctx, payment, provider, nil, err); settleErr != nil {
			return FailedPath(payment.TransactionID), settleErr
		}
		return FailedPath(payment.TransactionID), nil
	}

	ok, err := s.Verify(ctx, payment)
	if err != nil {
		recordFailure("verify_error")
		return FailedPath(payment.TransactionID), err
	}
	if !ok {
		return FailedPath(payment.TransactionID), nil
	}
	return SuccessPath(payment.TransactionID), nil
}

func (s *PaymentService) lookupRecord(ctx context.Context, payment *models.Payment) (string, error) {
	cfg, err := s.gateways.GetByID(ctx, payment.GatewayID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: gateway config: %v", gateway.ErrGatewayUnavailable, err)
	}
	adapter, err := s.adapters.Adapter(cfg)
	if err != nil {
		return cfg.Provider, classifyGatewayError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := adapter.Lookup(ctx, payment.TransactionID); err != nil {
		return cfg.Provider, classifyGatewayError(err)
	}
	return cfg.Provider, nil
}

func (s *PaymentService) auditUnknownTransaction(ctx context.Context, trackingCode, reason string) {
	s.logAudit(ctx, audit.Event{
		Action:       models.AuditSystem,
		Status:       models.AuditFailed,
		Priority:     models.PriorityHigh,
		Metadata:     map[string]any{"tracking_code": trackingCode},
		ErrorMessage: reason,
	})
}

// SettleByTrackingCode verifies the pending payment behind a tracking code.
// Processor webhooks use it; already settled payments report their status.
func (s *PaymentService) SettleByTrackingCode(ctx context.Context, trackingCode string) (*models.Payment, error) {
	payment, err := s.payments.GetByTransactionID(ctx, trackingCode)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, trackingCode)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.Verify(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// Reverify is the manual retry staff use for a payment left pending.
func (s *PaymentService) Reverify(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Verify(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

type StandalonePaymentInput struct {
	Amount      decimal.Decimal
	Currency    models.Currency
	Description string
	Object      *models.ObjectRef
	Metadata    map[string]any
}

type GatewayRedirect struct {
	Payment    *models.Payment
	Initiation *gateway.Initiation
}

// StartStandalone creates and initiates a payment that is not tied to a cart.
// When it references an object, the object must exist and belong to the user.
func (s *PaymentService) StartStandalone(ctx context.Context, userID uuid.UUID, input StandalonePaymentInput) (*GatewayRedirect, error) {
	if !input.Amount.IsPositive() {
		return nil, invalidInput("amount must be greater than zero")
	}
	if input.Currency == "" {
		input.Currency = s.defaultCurrency
	}
	if !input.Currency.Valid() {
		return nil, invalidInput("unsupported currency %q", input.Currency)
	}
	if input.Amount.Exponent() < -2 {
		return nil, invalidInput("amount has more than two decimal places")
	}

	if input.Object != nil {
		resolved, err := s.refs.Resolve(ctx, *input.Object)
		if errors.Is(err, ErrUnknownObjectKind) {
			return nil, invalidInput("%v", err)
		}
		if err != nil {
			return nil, err
		}
		if resolved.OwnerID != userID {
			return nil, ErrForbidden
		}
	}

	cfg, err := s.gateways.FirstActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: no active gateway: %v", gateway.ErrGatewayUnavailable, err)
	}

	metadata := map[string]any{"source": "standalone"}
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	payment := &models.Payment{
		UserID:    userID,
		GatewayID: cfg.ID,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Status:    models.PaymentStatusPending,
		Object:    input.Object,
		Metadata:  metadata,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	description := input.Description
	if description == "" {
		description = fmt.Sprintf("Payment %s", payment.ID)
	}
	initiation, err := s.Initiate(ctx, payment, cfg, s.payerFor(ctx, userID), description)
	if err != nil {
		return nil, err
	}
	return &GatewayRedirect{Payment: payment, Initiation: initiation}, nil
}

func (s *PaymentService) logAudit(ctx context.Context, ev audit.Event) {
	if ev.Object != nil && ev.ObjectRepr == "" {
		ev.ObjectRepr = s.refs.Describe(ctx, ev.Object)
	}
	if err := s.audit.Log(ctx, ev); err != nil {
		s.loggerFromContext(ctx).Warn("failed to record payment audit entry", "error", err, "action", ev.Action)
	}
}

func classifyGatewayError(err error) error {
	if errors.Is(err, gateway.ErrGatewayUnavailable) ||
		errors.Is(err, gateway.ErrTransactionNotFound) ||
		errors.Is(err, gateway.ErrVerificationFailed) {
		return err
	}
	// Timeouts and anything else unexpected count as the gateway being down.
	return fmt.Errorf("%w: %v", gateway.ErrGatewayUnavailable, err)
}
