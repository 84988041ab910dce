package stripe

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	stripeapi "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

func TestReadWebhookEvent_MissingSignature(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(`{}`))
	_, err := ReadWebhookEvent(req, "whsec_test")
	if err == nil {
		t.Fatal("expected error for missing signature")
	}
}

func TestReadWebhookEvent_Valid(t *testing.T) {
	t.Parallel()

	secret := "whsec_test_secret"
	payload := []byte(`{"id":"evt_test","object":"event","api_version":"2026-01-28.clover","type":"checkout.session.completed","data":{"object":{"id":"cs_test","object":"checkout.session"}}}`)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	event, err := ReadWebhookEvent(req, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil || event.ID != "evt_test" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestReadWebhookEvent_BadSignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_test","object":"event","api_version":"2026-01-28.clover","type":"checkout.session.completed"}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	if _, err := ReadWebhookEvent(req, "whsec_test_secret"); err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestCheckoutSessionFromEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		event    *stripeapi.Event
		wantID   string
		wantPaid bool
		wantErr  bool
	}{
		{
			name: "paid session",
			event: &stripeapi.Event{
				Type: "checkout.session.completed",
				Data: &stripeapi.EventData{Raw: []byte(`{"id":"cs_paid","object":"checkout.session","payment_status":"paid"}`)},
			},
			wantID:   "cs_paid",
			wantPaid: true,
		},
		{
			name: "expired session",
			event: &stripeapi.Event{
				Type: "checkout.session.expired",
				Data: &stripeapi.EventData{Raw: []byte(`{"id":"cs_gone","object":"checkout.session","payment_status":"unpaid"}`)},
			},
			wantID: "cs_gone",
		},
		{
			name: "other event type",
			event: &stripeapi.Event{
				Type: "charge.refunded",
				Data: &stripeapi.EventData{Raw: []byte(`{"id":"ch_1"}`)},
			},
			wantErr: true,
		},
		{
			name:    "no data",
			event:   &stripeapi.Event{Type: "checkout.session.completed"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sess, err := CheckoutSessionFromEvent(tt.event)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sess.ID != tt.wantID {
				t.Fatalf("expected session %s, got %s", tt.wantID, sess.ID)
			}
			if SessionPaid(sess) != tt.wantPaid {
				t.Fatalf("expected paid=%v", tt.wantPaid)
			}
		})
	}
}
