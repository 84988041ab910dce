package db

import (
	"context"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type queryStateContextKey struct{}

type queryState struct {
	span      *sentry.Span
	operation string
	startedAt time.Time
}

// queryTracer reports each statement as a sentry span (when a transaction is
// active) and as a duration sample on the db.query.duration histogram.
type queryTracer struct {
	duration metric.Float64Histogram
}

func newQueryTracer(meter metric.Meter) (*queryTracer, error) {
	t := &queryTracer{}
	if meter == nil {
		return t, nil
	}
	duration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Duration of database statements"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	t.duration = duration
	return t, nil
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	query := normalizeQuery(data.SQL)
	state := &queryState{
		operation: queryOperation(query),
		startedAt: time.Now(),
	}

	if sentry.SpanFromContext(ctx) != nil {
		span := sentry.StartSpan(
			ctx,
			"db.query",
			sentry.WithDescription(query),
			sentry.WithSpanOrigin(sentry.SpanOriginManual),
		)
		span.SetData("db.system", "postgresql")
		if state.operation != "" {
			span.SetData("db.operation", state.operation)
		}
		state.span = span
		ctx = span.Context()
	}

	return context.WithValue(ctx, queryStateContextKey{}, state)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	state, _ := ctx.Value(queryStateContextKey{}).(*queryState)
	if state == nil {
		return
	}

	if t.duration != nil {
		status := "ok"
		if data.Err != nil {
			status = "error"
		}
		t.duration.Record(ctx, float64(time.Since(state.startedAt).Microseconds())/1000,
			metric.WithAttributes(
				attribute.String("db.operation", state.operation),
				attribute.String("db.status", status),
			),
		)
	}

	span := state.span
	if span == nil {
		return
	}
	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
	}
	if rowsAffected := data.CommandTag.RowsAffected(); rowsAffected >= 0 {
		span.SetData("db.rows_affected", rowsAffected)
	}
	span.Finish()
}

func normalizeQuery(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}
	const maxLen = 512
	if len(normalized) > maxLen {
		return normalized[:maxLen]
	}
	return normalized
}

func queryOperation(query string) string {
	operation, _, _ := strings.Cut(query, " ")
	return strings.ToUpper(operation)
}
