package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
)

func TestRequestRefund(t *testing.T) {
	t.Parallel()

	th := newHarness(t)
	paymentID := uuid.New()
	th.refunds.refund = &models.Refund{ID: uuid.New(), PaymentID: paymentID, Status: models.RefundPending}

	body := `{"payment_id":"` + paymentID.String() + `","amount":"50","reason":"damaged"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/payment/api/refunds/", strings.NewReader(body)), uuid.New(), false)
	rec := httptest.NewRecorder()
	th.h.RequestRefund(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if th.refunds.request.PaymentID != paymentID || !th.refunds.request.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected refund request: %+v", th.refunds.request)
	}
}

func TestRequestRefund_MissingPayment(t *testing.T) {
	t.Parallel()

	th := newHarness(t)
	req := asUser(httptest.NewRequest(http.MethodPost, "/payment/api/refunds/", strings.NewReader(`{"amount":"5"}`)), uuid.New(), false)
	rec := httptest.NewRecorder()
	th.h.RequestRefund(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestApproveRefund(t *testing.T) {
	t.Parallel()

	refundID := uuid.New()

	tests := []struct {
		name       string
		anonymous  bool
		staff      bool
		err        error
		wantStatus int
	}{
		{name: "anonymous", anonymous: true, wantStatus: http.StatusUnauthorized},
		{name: "customer", wantStatus: http.StatusForbidden},
		{name: "staff", staff: true, wantStatus: http.StatusOK},
		{name: "already decided", staff: true, err: errTransition(), wantStatus: http.StatusConflict},
		{name: "unknown refund", staff: true, err: errNotFound(), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			th := newHarness(t)
			th.refunds.refund = &models.Refund{ID: refundID, Status: models.RefundApproved}
			th.refunds.err = tt.err

			req := httptest.NewRequest(http.MethodPost, "/payment/api/refunds/"+refundID.String()+"/approve/", nil)
			req = withVars(req, map[string]string{"id": refundID.String()})
			if !tt.anonymous {
				req = asUser(req, uuid.New(), tt.staff)
			}
			rec := httptest.NewRecorder()
			th.h.ApproveRefund(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && th.refunds.decided != refundID {
				t.Fatalf("refund %s was not approved", refundID)
			}
		})
	}
}
