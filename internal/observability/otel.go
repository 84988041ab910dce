package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/gitshopapp/shopcore/internal/models"
)

const metricsExportInterval = 10 * time.Second

type MeterProviderConfig struct {
	// Endpoint is host:port of an OTLP HTTP collector. Empty keeps metrics
	// in process without exporting them.
	Endpoint    string
	Insecure    bool
	ServiceName string
	Environment string
}

// NewMeterProvider builds the OTel meter provider and installs it globally.
// The caller owns Shutdown.
func NewMeterProvider(ctx context.Context, cfg MeterProviderConfig) (*sdkmetric.MeterProvider, error) {
	envRes, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		envRes = resource.Empty()
	}
	explicitRes, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics resource: %w", err)
	}
	res, err := resource.Merge(envRes, explicitRes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge metrics resources: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		exporterOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithURLPath("/v1/metrics"),
		}
		if cfg.Insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricsExportInterval)),
		))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)
	return provider, nil
}

// BusinessMetrics records checkout, payment and refund outcomes as OTel
// instruments.
type BusinessMetrics struct {
	checkouts     metric.Int64Counter
	orderValue    metric.Float64Histogram
	payments      metric.Int64Counter
	refunds       metric.Int64Counter
	refundedValue metric.Float64Counter
}

func NewBusinessMetrics(meter metric.Meter) (*BusinessMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter("shopcore")
	}

	checkouts, err := meter.Int64Counter(
		"shop.checkouts.count",
		metric.WithDescription("Orders created at checkout"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkouts counter: %w", err)
	}

	orderValue, err := meter.Float64Histogram(
		"shop.checkouts.total",
		metric.WithDescription("Order totals at checkout in the order currency"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create order value histogram: %w", err)
	}

	payments, err := meter.Int64Counter(
		"shop.payments.count",
		metric.WithDescription("Payments that reached a terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create payments counter: %w", err)
	}

	refunds, err := meter.Int64Counter(
		"shop.refunds.count",
		metric.WithDescription("Approved refunds"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refunds counter: %w", err)
	}

	refundedValue, err := meter.Float64Counter(
		"shop.refunds.amount",
		metric.WithDescription("Refunded amount in the payment currency"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refunded amount counter: %w", err)
	}

	return &BusinessMetrics{
		checkouts:     checkouts,
		orderValue:    orderValue,
		payments:      payments,
		refunds:       refunds,
		refundedValue: refundedValue,
	}, nil
}

func (m *BusinessMetrics) RecordCheckout(ctx context.Context, currency models.Currency, total decimal.Decimal, couponApplied bool) {
	attrs := metric.WithAttributes(
		attribute.String("currency", string(currency)),
		attribute.Bool("coupon_applied", couponApplied),
	)
	m.checkouts.Add(ctx, 1, attrs)
	m.orderValue.Record(ctx, total.InexactFloat64(), attrs)
}

func (m *BusinessMetrics) RecordPayment(ctx context.Context, provider string, status models.PaymentStatus) {
	m.payments.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", string(status)),
	))
}

func (m *BusinessMetrics) RecordRefund(ctx context.Context, currency models.Currency, amount decimal.Decimal) {
	attrs := metric.WithAttributes(attribute.String("currency", string(currency)))
	m.refunds.Add(ctx, 1, attrs)
	m.refundedValue.Add(ctx, amount.InexactFloat64(), attrs)
}
