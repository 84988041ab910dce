package observability

import (
	"slices"
	"testing"
	"time"
)

func TestPropagationTargets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		urls []string
		want []string
	}{
		{
			name: "defaults only",
			want: defaultPropagationTargets,
		},
		{
			name: "bank gateway hosts are added once",
			urls: []string{"https://Pay.Bank.example/api", "https://pay.bank.example:8443", " https://sandbox.bank.example "},
			want: append(append([]string(nil), defaultPropagationTargets...), "pay.bank.example", "sandbox.bank.example"),
		},
		{
			name: "unparseable and known hosts are skipped",
			urls: []string{"::not a url", "", "https://api.stripe.com/v1"},
			want: defaultPropagationTargets,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := PropagationTargets(tt.urls...); !slices.Equal(got, tt.want) {
				t.Fatalf("PropagationTargets() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewHTTPClientTimeout(t *testing.T) {
	t.Parallel()

	if got := NewHTTPClient(0).Timeout; got != 0 {
		t.Fatalf("zero timeout produced %v", got)
	}
	client := NewHTTPClient(5*time.Second, "https://pay.bank.example")
	if client.Timeout != 5*time.Second || client.Transport == nil {
		t.Fatalf("client = %+v", client)
	}
}
