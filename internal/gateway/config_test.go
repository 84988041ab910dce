package gateway

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		yaml      string
		wantErr   bool
		wantCount int
	}{
		{
			name: "bank and stripe",
			yaml: `
gateways:
  - name: sandbox
    provider: bank
    merchant_id: m-1
    base_url: https://bank.test
  - name: cards
    provider: Stripe
    api_key: sk_test_123
    active: false
`,
			wantCount: 2,
		},
		{name: "invalid yaml", yaml: "gateways: [", wantErr: true},
		{name: "empty", yaml: "gateways: []", wantErr: true},
		{
			name: "bank without merchant",
			yaml: `
gateways:
  - name: sandbox
    provider: bank
    base_url: https://bank.test
`,
			wantErr: true,
		},
		{
			name: "unknown provider",
			yaml: `
gateways:
  - name: sandbox
    provider: paypal
`,
			wantErr: true,
		},
		{
			name: "duplicate names",
			yaml: `
gateways:
  - {name: a, provider: stripe, api_key: k}
  - {name: a, provider: stripe, api_key: k}
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			configs, err := ParseConfig([]byte(tt.yaml), "https://shop.test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(configs) != tt.wantCount {
				t.Fatalf("expected %d gateways, got %d", tt.wantCount, len(configs))
			}
		})
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	configs, err := ParseConfig([]byte(`
gateways:
  - {name: cards, provider: stripe, api_key: sk_test}
  - {name: off, provider: stripe, api_key: sk_test, active: false, callback_url: "https://cb.test/"}
`), "https://shop.test/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !configs[0].IsActive {
		t.Fatal("expected gateways to default to active")
	}
	if configs[0].CallbackURL != "https://shop.test/payment/callback/" {
		t.Fatalf("unexpected default callback %q", configs[0].CallbackURL)
	}
	if configs[1].IsActive || configs[1].CallbackURL != "https://cb.test/" {
		t.Fatalf("expected explicit values to be kept, got %+v", configs[1])
	}
}

func TestLoadConfigFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BANK_MERCHANT", "merchant-from-env")

	path := filepath.Join(t.TempDir(), "gateways.yaml")
	content := "gateways:\n  - {name: bank, provider: bank, merchant_id: \"${TEST_BANK_MERCHANT}\", base_url: \"https://bank.test\"}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	configs, err := LoadConfigFile(path, "https://shop.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if configs[0].MerchantID != "merchant-from-env" {
		t.Fatalf("expected merchant id from env, got %q", configs[0].MerchantID)
	}
}
