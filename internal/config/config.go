package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/gitshopapp/shopcore/internal/models"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	ApplySchema bool   `env:"APPLY_SCHEMA" envDefault:"false"`
	BaseURL     string `env:"BASE_URL,required" validate:"required,url"`
	Port        string `env:"PORT" envDefault:"8080"`

	JWTSecret     string `env:"JWT_SECRET,required" validate:"required,min=32"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"shopcore"`
	EncryptionKey string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	JobQueueProvider      string `env:"JOB_QUEUE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=JobQueueProvider redis"`
	JobWorkers            int    `env:"JOB_WORKERS" envDefault:"4" validate:"min=1,max=64"`
	JobMaxAttempts        int    `env:"JOB_MAX_ATTEMPTS" envDefault:"5" validate:"min=1"`

	GatewayTimeout     time.Duration   `env:"GATEWAY_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	GatewaysFile       string          `env:"GATEWAYS_FILE"`
	DefaultCurrency    models.Currency `env:"DEFAULT_CURRENCY" envDefault:"IRR" validate:"oneof=IRR USD EUR"`
	FallbackPayerPhone string          `env:"FALLBACK_PAYER_PHONE" envDefault:"+989000000000" validate:"required"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=resend postmark mailgun"`
	EmailAPIKey   string `env:"EMAIL_API_KEY" validate:"required_with=EmailProvider"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_with=EmailProvider"`
	EmailDomain   string `env:"EMAIL_DOMAIN" validate:"required_if=EmailProvider mailgun"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"shopcore" validate:"required"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPS       float64  `env:"RATE_LIMIT_RPS" envDefault:"5" validate:"gt=0"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"10" validate:"min=1"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if strings.TrimSpace(c.StripeWebhookSecret) != "" && strings.TrimSpace(c.StripeSecretKey) == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET requires STRIPE_SECRET_KEY")
	}

	if c.EmailFrom != "" {
		if err := configValidator.Var(c.EmailFrom, "email"); err != nil {
			return fmt.Errorf("EMAIL_FROM must be an email address")
		}
	}

	parsed, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("BASE_URL must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("BASE_URL must use https outside local development")
	}

	for _, origin := range c.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS entry %q is not an origin", origin)
		}
	}

	return nil
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
