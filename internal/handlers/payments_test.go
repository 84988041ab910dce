package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/services"
)

func TestPaymentCallback_AlwaysRedirects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		target   string
		err      error
		wantCode string
		wantLoc  string
	}{
		{
			name:     "success",
			url:      "/payment/callback/?tc=TC-1001",
			target:   services.SuccessPath("TC-1001"),
			wantCode: "TC-1001",
			wantLoc:  "/payment/success/TC-1001/",
		},
		{
			name:     "unknown tracking code",
			url:      "/payment/callback/?tc=nope",
			target:   services.FailurePath,
			err:      services.ErrUnknownTransaction,
			wantCode: "nope",
			wantLoc:  "/payment/failed/",
		},
		{
			name:    "missing tracking code",
			url:     "/payment/callback/",
			target:  services.FailurePath,
			err:     services.ErrUnknownTransaction,
			wantLoc: "/payment/failed/",
		},
		{
			name:     "no target falls back to failure page",
			url:      "/payment/callback/?tc=TC-1",
			err:      errBoom,
			wantCode: "TC-1",
			wantLoc:  "/payment/failed/",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			th := newHarness(t)
			th.payments.target = tt.target
			th.payments.callbackErr = tt.err

			rec := httptest.NewRecorder()
			th.h.PaymentCallback(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != http.StatusFound {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
			}
			if got := rec.Header().Get("Location"); got != tt.wantLoc {
				t.Fatalf("Location = %q, want %q", got, tt.wantLoc)
			}
			if th.payments.trackingSeen != tt.wantCode {
				t.Fatalf("tracking code = %q, want %q", th.payments.trackingSeen, tt.wantCode)
			}
			if strings.Contains(rec.Header().Get("Content-Type"), "json") {
				t.Fatalf("callback must not answer with JSON")
			}
		})
	}
}

func TestGoToGateway_JSON(t *testing.T) {
	t.Parallel()

	th := newHarness(t)
	th.payments.redirect = &services.GatewayRedirect{Payment: samplePayment(), Initiation: sampleInitiation()}
	objectID := uuid.New()

	body := `{"amount":"250.50","currency":"USD","description":"Gift card","object":"order:` + objectID.String() + `"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/payment/go-to-gateway/", strings.NewReader(body)), uuid.New(), false)
	rec := httptest.NewRecorder()
	th.h.GoToGateway(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	in := th.payments.standalone
	if !in.Amount.Equal(decimal.RequireFromString("250.50")) || in.Currency != models.CurrencyUSD {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.Object == nil || in.Object.Kind != models.KindOrder || in.Object.ID != objectID {
		t.Fatalf("object reference not parsed: %+v", in.Object)
	}

	var resp gatewayRedirectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Method != http.MethodPost || resp.URL != "https://bank.example/pay" {
		t.Fatalf("unexpected redirect: %+v", resp)
	}
}

func TestGoToGateway_HTMLForm(t *testing.T) {
	t.Parallel()

	th := newHarness(t)
	th.payments.redirect = &services.GatewayRedirect{Payment: samplePayment(), Initiation: sampleInitiation()}

	req := httptest.NewRequest(http.MethodPost, "/payment/go-to-gateway/", strings.NewReader(`{"amount":"89"}`))
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	th.h.GoToGateway(rec, asUser(req, uuid.New(), false))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{`action="https://bank.example/pay"`, `name="token" value="tok-1001"`, "data:image/png;base64,"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected form to contain %q", want)
		}
	}
}

func TestGoToGateway_RejectsBadObjectReference(t *testing.T) {
	t.Parallel()

	th := newHarness(t)
	req := asUser(httptest.NewRequest(http.MethodPost, "/payment/go-to-gateway/", strings.NewReader(`{"amount":"10","object":"order"}`)), uuid.New(), false)
	rec := httptest.NewRecorder()
	th.h.GoToGateway(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReverifyPayment_StaffOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		staff      bool
		wantStatus int
	}{
		{name: "customer", staff: false, wantStatus: http.StatusForbidden},
		{name: "staff", staff: true, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			th := newHarness(t)
			payment := samplePayment()
			payment.Status = models.PaymentStatusSuccess
			th.payments.reverified = payment

			req := httptest.NewRequest(http.MethodPost, "/payment/api/payments/"+payment.ID.String()+"/verify/", nil)
			req = asUser(withVars(req, map[string]string{"id": payment.ID.String()}), uuid.New(), tt.staff)
			rec := httptest.NewRecorder()
			th.h.ReverifyPayment(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestPaymentResultPages(t *testing.T) {
	t.Parallel()

	th := newHarness(t)

	rec := httptest.NewRecorder()
	req := withVars(httptest.NewRequest(http.MethodGet, "/payment/success/TC-9/", nil), map[string]string{"tx": "TC-9"})
	th.h.PaymentSuccess(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Payment successful") || !strings.Contains(rec.Body.String(), "TC-9") {
		t.Fatalf("unexpected success page: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	th.h.PaymentFailed(rec, httptest.NewRequest(http.MethodGet, "/payment/failed/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Payment failed") {
		t.Fatalf("unexpected failure page: %d", rec.Code)
	}
}
