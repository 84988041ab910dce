package gateway

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gitshopapp/shopcore/internal/models"
	"github.com/gitshopapp/shopcore/internal/stripe"
)

const (
	ProviderBank   = "bank"
	ProviderStripe = "stripe"
)

// Factory builds an adapter for one stored gateway config.
type Factory func(cfg *models.GatewayConfig) (Adapter, error)

// Registry resolves a gateway config to its adapter by provider name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry registers the bank and Stripe providers. httpClient is shared
// by every bank adapter.
func NewRegistry(httpClient *http.Client) *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(ProviderBank, func(cfg *models.GatewayConfig) (Adapter, error) {
		return NewBankAdapter(cfg, httpClient)
	})
	r.Register(ProviderStripe, func(cfg *models.GatewayConfig) (Adapter, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: stripe secret key missing for %s", ErrGatewayUnavailable, cfg.Name)
		}
		return NewStripeAdapter(stripe.NewClient(cfg.APIKey)), nil
	})
	return r
}

func (r *Registry) Register(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
}

func (r *Registry) Adapter(cfg *models.GatewayConfig) (Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: gateway config is required", ErrGatewayUnavailable)
	}

	r.mu.RLock()
	factory, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrGatewayUnavailable, cfg.Provider)
	}
	return factory(cfg)
}
