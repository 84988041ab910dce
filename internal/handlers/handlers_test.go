package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gitshopapp/shopcore/internal/config"
)

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(Dependencies{Config: &config.Config{}})
	if err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Fatalf("expected missing db error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
	}{
		{name: "healthy", wantStatus: http.StatusOK},
		{name: "database down", pingErr: errBoom, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			th := newHarness(t)
			th.h.db = fakePinger{err: tt.pingErr}

			rec := httptest.NewRecorder()
			th.h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{name: "empty cart", err: errEmptyCart(), wantStatus: http.StatusBadRequest, wantMsg: "Cart is empty."},
		{name: "invalid coupon keeps reason", err: errCoupon("Coupon is not active."), wantStatus: http.StatusBadRequest, wantMsg: "Coupon is not active."},
		{name: "forbidden", err: errForbidden(), wantStatus: http.StatusForbidden},
		{name: "not found", err: errNotFound(), wantStatus: http.StatusNotFound},
		{name: "stale transition", err: errTransition(), wantStatus: http.StatusConflict},
		{name: "gateway", err: errGateway(), wantStatus: http.StatusBadGateway},
		{name: "unexpected", err: errBoom, wantStatus: http.StatusInternalServerError, wantMsg: "Internal server error."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, msg := statusForError(tt.err)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantMsg != "" && msg != tt.wantMsg {
				t.Fatalf("message = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
