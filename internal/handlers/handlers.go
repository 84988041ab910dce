package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/auth"
	"github.com/gitshopapp/shopcore/internal/cache"
	"github.com/gitshopapp/shopcore/internal/config"
	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/notify"
	"github.com/gitshopapp/shopcore/internal/services"
)

const (
	maxWebhookBodyBytes = 1 << 20 // 1 MB
	maxJSONBodyBytes    = 64 << 10
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type CheckoutService interface {
	Checkout(ctx context.Context, input services.CheckoutInput) (*services.CheckoutResult, error)
}

type PaymentService interface {
	HandleCallback(ctx context.Context, trackingCode string) (string, error)
	StartStandalone(ctx context.Context, userID uuid.UUID, input services.StandalonePaymentInput) (*services.GatewayRedirect, error)
	Reverify(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	SettleByTrackingCode(ctx context.Context, trackingCode string) (*models.Payment, error)
}

type OrderService interface {
	Get(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, actor services.Actor, id uuid.UUID, update services.OrderUpdate) (*models.Order, error)
}

type RefundService interface {
	Request(ctx context.Context, actor services.Actor, req services.RefundRequest) (*models.Refund, error)
	Approve(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Refund, error)
	Reject(ctx context.Context, actor services.Actor, id uuid.UUID) (*models.Refund, error)
}

type AuditLogger interface {
	Log(ctx context.Context, ev audit.Event) error
}

// Handlers serves the checkout, payment and refund HTTP surface.
type Handlers struct {
	config        *config.Config
	db            Pinger
	checkout      CheckoutService
	payments      PaymentService
	orders        OrderService
	refunds       RefundService
	verifier      *auth.Verifier
	cacheProvider cache.Provider
	hub           *notify.Hub
	audit         AuditLogger
	stripeRouter  *StripeEventRouter
	limiter       *RateLimiter
	logger        *slog.Logger
}

type Dependencies struct {
	Config        *config.Config
	DB            Pinger
	Checkout      CheckoutService
	Payments      PaymentService
	Orders        OrderService
	Refunds       RefundService
	Verifier      *auth.Verifier
	CacheProvider cache.Provider
	Hub           *notify.Hub
	Audit         AuditLogger
	StripeRouter  *StripeEventRouter
	Limiter       *RateLimiter
	Logger        *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Checkout == nil {
		return nil, fmt.Errorf("handlers dependencies: checkout is required")
	}
	if deps.Payments == nil {
		return nil, fmt.Errorf("handlers dependencies: payments is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("handlers dependencies: orders is required")
	}
	if deps.Refunds == nil {
		return nil, fmt.Errorf("handlers dependencies: refunds is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("handlers dependencies: hub is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("handlers dependencies: audit is required")
	}
	if deps.StripeRouter == nil {
		return nil, fmt.Errorf("handlers dependencies: stripeRouter is required")
	}

	limiter := deps.Limiter
	if limiter == nil {
		var err error
		limiter, err = NewRateLimiter(deps.Config.RateLimitRPS, deps.Config.RateLimitBurst)
		if err != nil {
			return nil, fmt.Errorf("handlers dependencies: %w", err)
		}
	}

	return &Handlers{
		config:        deps.Config,
		db:            deps.DB,
		checkout:      deps.Checkout,
		payments:      deps.Payments,
		orders:        deps.Orders,
		refunds:       deps.Refunds,
		verifier:      deps.Verifier,
		cacheProvider: deps.CacheProvider,
		hub:           deps.Hub,
		audit:         deps.Audit,
		stripeRouter:  deps.StripeRouter,
		limiter:       limiter,
		logger:        logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

// Authenticate attaches the bearer token principal, if any, to the request.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return h.verifier.Authenticate(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
