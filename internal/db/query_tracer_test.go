package db

import (
	"strings"
	"testing"
)

func TestNormalizeQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "collapses whitespace", query: "\n\tSELECT  id\n FROM orders\n", want: "SELECT id FROM orders"},
		{name: "empty", query: "   ", want: "sql.query"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizeQuery(tt.query); got != tt.want {
				t.Fatalf("normalizeQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeQueryTruncates(t *testing.T) {
	t.Parallel()

	long := "SELECT " + strings.Repeat("x, ", 400)
	if got := normalizeQuery(long); len(got) != 512 {
		t.Fatalf("expected 512 chars, got %d", len(got))
	}
}

func TestQueryOperation(t *testing.T) {
	t.Parallel()

	if got := queryOperation("update payments set status = $1"); got != "UPDATE" {
		t.Fatalf("queryOperation() = %q, want UPDATE", got)
	}
	if got := queryOperation(""); got != "" {
		t.Fatalf("queryOperation() = %q, want empty", got)
	}
}

func TestNewQueryTracerWithoutMeter(t *testing.T) {
	t.Parallel()

	tracer, err := newQueryTracer(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tracer.duration != nil {
		t.Fatalf("expected no histogram without a meter")
	}
}
