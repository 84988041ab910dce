package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/gitshopapp/shopcore/internal/audit"
	"github.com/gitshopapp/shopcore/internal/auth"
	"github.com/gitshopapp/shopcore/internal/cache"
	"github.com/gitshopapp/shopcore/internal/config"
	"github.com/gitshopapp/shopcore/internal/coupon"
	"github.com/gitshopapp/shopcore/internal/crypto"
	"github.com/gitshopapp/shopcore/internal/db"
	"github.com/gitshopapp/shopcore/internal/email"
	"github.com/gitshopapp/shopcore/internal/gateway"
	"github.com/gitshopapp/shopcore/internal/handlers"
	"github.com/gitshopapp/shopcore/internal/jobs"
	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/notify"
	"github.com/gitshopapp/shopcore/internal/observability"
	"github.com/gitshopapp/shopcore/internal/pricing"
	"github.com/gitshopapp/shopcore/internal/services"
)

const appName = "ShopCore"

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	Redis         *redis.Client
	CacheProvider cache.Provider
	Queue         jobs.Queue
	Worker        *jobs.Worker
	Hub           *notify.Hub
	MeterProvider *sdkmetric.MeterProvider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	a := &App{Config: cfg, Logger: logger}
	if err := a.init(startupCtx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	meterProvider, err := observability.NewMeterProvider(ctx, observability.MeterProviderConfig{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.OTelServiceName,
		Environment: cfg.SentryEnvironment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.MeterProvider = meterProvider
	meter := meterProvider.Meter(cfg.OTelServiceName)

	businessMetrics, err := observability.NewBusinessMetrics(meter)
	if err != nil {
		return fmt.Errorf("failed to initialize business metrics: %w", err)
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL, meter)
	if err != nil {
		return err
	}
	a.DB = database
	if cfg.ApplySchema {
		if err := db.ApplySchema(ctx, database); err != nil {
			return err
		}
		logger.Info("database schema applied")
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	if cfg.CacheProvider == "redis" || cfg.JobQueueProvider == "redis" {
		client, err := cache.ConnectRedis(ctx, cfg.RedisConnectionString)
		if err != nil {
			return err
		}
		a.Redis = client
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider: cfg.CacheProvider,
		Redis:    a.Redis,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}
	a.CacheProvider = cacheProvider

	queue, err := jobs.NewQueue(jobs.Config{
		Provider: cfg.JobQueueProvider,
		Redis:    a.Redis,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}
	a.Queue = queue

	userStore := db.NewUserStore(database)
	cartStore := db.NewCartStore(database)
	couponStore := db.NewCouponStore(database)
	orderStore := db.NewOrderStore(database)
	paymentStore := db.NewPaymentStore(database)
	refundStore := db.NewRefundStore(database)
	gatewayStore := db.NewGatewayConfigStore(database, encryptor)

	var gatewayURLs []string
	if cfg.GatewaysFile != "" {
		seeded, err := seedGateways(ctx, gatewayStore, cfg)
		if err != nil {
			return err
		}
		gatewayURLs = seeded
	}

	httpClient := observability.NewHTTPClient(cfg.GatewayTimeout, gatewayURLs...)

	mailer, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
		Domain:   cfg.EmailDomain,
	}, httpClient)
	if err != nil {
		return fmt.Errorf("failed to initialize email provider: %w", err)
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to initialize email renderer: %w", err)
	}

	a.Hub = notify.NewHub(logger.With("component", "notification_hub"))
	dispatcher := notify.NewDispatcher(queue, logger.With("component", "notification_dispatcher"))
	deliverer, err := notify.NewDeliverer(notify.DelivererConfig{
		Store:    db.NewNotificationStore(database),
		Users:    userStore,
		Pusher:   a.Hub,
		Mailer:   mailer,
		Renderer: renderer,
		Queue:    queue,
		AppName:  appName,
		AppURL:   cfg.BaseURL,
		Logger:   logger.With("component", "notification_deliverer"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize notification deliverer: %w", err)
	}

	auditLogger := audit.NewLogger(queue, dispatcher, logger.With("component", "audit"))

	a.Worker = jobs.NewWorker(queue, logger.With("component", "jobs"), jobs.WorkerOptions{
		Concurrency: cfg.JobWorkers,
		MaxAttempts: cfg.JobMaxAttempts,
	})
	a.Worker.Handle(audit.JobType, audit.NewJobHandler(db.NewAuditStore(database)))
	deliverer.Register(a.Worker)

	refs := services.NewRefRegistry()
	refs.Register(models.KindOrder, services.OrderLookup(orderStore))
	refs.Register(models.KindPayment, services.PaymentLookup(paymentStore))
	refs.Register(models.KindRefund, services.RefundLookup(refundStore))

	statuses := services.NewStatusDispatcher(orderStore, dispatcher, auditLogger, logger.With("component", "status_dispatcher"))

	paymentService := services.NewPaymentService(services.PaymentServiceConfig{
		Payments:        paymentStore,
		Gateways:        gatewayStore,
		Adapters:        gateway.NewRegistry(httpClient),
		Users:           userStore,
		Refs:            refs,
		Statuses:        statuses,
		Notifier:        dispatcher,
		Audit:           auditLogger,
		Metrics:         businessMetrics,
		Timeout:         cfg.GatewayTimeout,
		DefaultCurrency: cfg.DefaultCurrency,
		FallbackPhone:   cfg.FallbackPayerPhone,
		Logger:          logger.With("component", "payment_service"),
	})
	checkoutService := services.NewCheckoutService(services.CheckoutServiceConfig{
		Carts:           cartStore,
		Coupons:         couponStore,
		Validator:       coupon.NewValidator(couponStore),
		Calculator:      pricing.NewCalculator(),
		Orders:          orderStore,
		Gateways:        gatewayStore,
		Payments:        paymentService,
		Notifier:        dispatcher,
		Audit:           auditLogger,
		Metrics:         businessMetrics,
		DefaultCurrency: cfg.DefaultCurrency,
		Logger:          logger.With("component", "checkout_service"),
	})
	orderService := services.NewOrderService(orderStore, statuses, auditLogger, logger.With("component", "order_service"))
	refundService := services.NewRefundService(refundStore, paymentStore, statuses, dispatcher, auditLogger, businessMetrics, logger.With("component", "refund_service"))

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:        cfg,
		DB:            database,
		Checkout:      checkoutService,
		Payments:      paymentService,
		Orders:        orderService,
		Refunds:       refundService,
		Verifier:      verifier,
		CacheProvider: cacheProvider,
		Hub:           a.Hub,
		Audit:         auditLogger,
		StripeRouter:  handlers.NewStripeEventRouter(paymentService, logger.With("component", "stripe_router")),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.Handlers = h
	return nil
}

// StartWorkers begins consuming queued audit and notification jobs.
func (a *App) StartWorkers(ctx context.Context) {
	if a == nil || a.Worker == nil {
		return
	}
	a.Worker.Start(ctx)
}

// Close releases resources in reverse start order: workers drain before the
// queue, cache and database they depend on go away.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Worker != nil {
		if err := a.Worker.Stop(ctx); err != nil {
			a.Logger.Warn("failed to stop job workers", "error", err)
		}
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Warn("failed to close job queue", "error", err)
		}
	}
	if a.CacheProvider != nil {
		if err := a.CacheProvider.Close(); err != nil {
			a.Logger.Warn("failed to close cache provider", "error", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.MeterProvider != nil {
		if err := a.MeterProvider.Shutdown(ctx); err != nil {
			a.Logger.Warn("failed to shut down meter provider", "error", err)
		}
	}
	if a.Config != nil && a.Config.SentryDSN != "" {
		sentry.Flush(2 * time.Second)
	}
}

type gatewayUpserter interface {
	Upsert(ctx context.Context, cfg *models.GatewayConfig) error
}

// seedGateways upserts the gateways file and returns the base URLs it named.
func seedGateways(ctx context.Context, store gatewayUpserter, cfg *config.Config) ([]string, error) {
	configs, err := gateway.LoadConfigFile(cfg.GatewaysFile, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load gateways: %w", err)
	}
	urls := make([]string, 0, len(configs))
	for i := range configs {
		if err := store.Upsert(ctx, &configs[i]); err != nil {
			return nil, fmt.Errorf("failed to store gateway %s: %w", configs[i].Name, err)
		}
		if configs[i].BaseURL != "" {
			urls = append(urls, configs[i].BaseURL)
		}
	}
	return urls, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		base = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		base = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if cfg.SentryDSN == "" {
		return slog.New(logging.MultiHandler(base))
	}
	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
	}.NewSentryHandler(context.Background())
	return slog.New(logging.MultiHandler(base, sentryHandler))
}
