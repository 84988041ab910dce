package gateway

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gitshopapp/shopcore/internal/models"
)

// DefaultCallbackPath is appended to the base URL when a gateway entry has no callback_url.
const DefaultCallbackPath = "/payment/callback/"

type seedFile struct {
	Gateways []seedGateway `yaml:"gateways"`
}

type seedGateway struct {
	Name        string `yaml:"name"`
	Provider    string `yaml:"provider"`
	MerchantID  string `yaml:"merchant_id"`
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	CallbackURL string `yaml:"callback_url"`
	Active      *bool  `yaml:"active"`
}

// LoadConfigFile reads a gateway seed file. ${VAR} references are expanded
// from the environment so secrets stay out of the file.
func LoadConfigFile(path, baseURL string) ([]models.GatewayConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway file: %w", err)
	}
	return ParseConfig([]byte(os.ExpandEnv(string(content))), baseURL)
}

func ParseConfig(content []byte, baseURL string) ([]models.GatewayConfig, error) {
	var file seedFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(file.Gateways) == 0 {
		return nil, fmt.Errorf("at least one gateway is required")
	}

	names := make(map[string]bool)
	configs := make([]models.GatewayConfig, 0, len(file.Gateways))
	for i, g := range file.Gateways {
		cfg, err := g.toConfig(baseURL)
		if err != nil {
			return nil, fmt.Errorf("gateway %d validation failed: %w", i, err)
		}
		if names[cfg.Name] {
			return nil, fmt.Errorf("duplicate gateway name: %s", cfg.Name)
		}
		names[cfg.Name] = true
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (g seedGateway) toConfig(baseURL string) (models.GatewayConfig, error) {
	cfg := models.GatewayConfig{
		Name:        strings.TrimSpace(g.Name),
		Provider:    strings.ToLower(strings.TrimSpace(g.Provider)),
		MerchantID:  strings.TrimSpace(g.MerchantID),
		APIKey:      strings.TrimSpace(g.APIKey),
		BaseURL:     strings.TrimSpace(g.BaseURL),
		CallbackURL: strings.TrimSpace(g.CallbackURL),
		IsActive:    g.Active == nil || *g.Active,
	}

	if cfg.Name == "" {
		return cfg, fmt.Errorf("gateway name is required")
	}

	switch cfg.Provider {
	case ProviderBank:
		if cfg.MerchantID == "" {
			return cfg, fmt.Errorf("merchant_id is required for bank gateways")
		}
		if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
			return cfg, fmt.Errorf("base_url must be an absolute URL")
		}
	case ProviderStripe:
		if cfg.APIKey == "" {
			return cfg, fmt.Errorf("api_key is required for stripe gateways")
		}
	default:
		return cfg, fmt.Errorf("unsupported provider %q", g.Provider)
	}

	if cfg.CallbackURL == "" {
		if baseURL == "" {
			return cfg, fmt.Errorf("callback_url is required when no base URL is configured")
		}
		cfg.CallbackURL = strings.TrimRight(baseURL, "/") + DefaultCallbackPath
	}
	return cfg, nil
}
