package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/shopcore/internal/crypto"
)

const (
	merchantIDLabel = "payment_gateway_configs.merchant_id"
	apiKeyLabel     = "payment_gateway_configs.api_key"
)

// GatewayConfigStore keeps merchant credentials encrypted at rest.
type GatewayConfigStore struct {
	pool      *pgxpool.Pool
	encryptor crypto.Encryptor
}

func NewGatewayConfigStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) *GatewayConfigStore {
	return &GatewayConfigStore{pool: pool, encryptor: encryptor}
}

const gatewayColumns = `id, name, provider, merchant_id_enc, api_key_enc, base_url, callback_url, is_active, created_at`

func (s *GatewayConfigStore) scan(row pgx.Row) (*GatewayConfig, error) {
	cfg := &GatewayConfig{}
	var merchantEnc, apiKeyEnc string
	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Provider, &merchantEnc, &apiKeyEnc, &cfg.BaseURL,
		&cfg.CallbackURL, &cfg.IsActive, &cfg.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if cfg.MerchantID, err = s.encryptor.Decrypt(merchantEnc, merchantIDLabel); err != nil {
		return nil, fmt.Errorf("failed to decrypt merchant id for gateway %s: %w", cfg.Name, err)
	}
	if cfg.APIKey, err = s.encryptor.Decrypt(apiKeyEnc, apiKeyLabel); err != nil {
		return nil, fmt.Errorf("failed to decrypt api key for gateway %s: %w", cfg.Name, err)
	}
	return cfg, nil
}

// FirstActive returns the oldest active gateway, the one checkout uses.
func (s *GatewayConfigStore) FirstActive(ctx context.Context) (*GatewayConfig, error) {
	cfg, err := s.scan(s.pool.QueryRow(ctx, `
		SELECT `+gatewayColumns+` FROM payment_gateway_configs
		WHERE is_active ORDER BY created_at, name LIMIT 1
	`))
	if err != nil {
		return nil, notFound(err, "active payment gateway")
	}
	return cfg, nil
}

func (s *GatewayConfigStore) GetByID(ctx context.Context, id uuid.UUID) (*GatewayConfig, error) {
	cfg, err := s.scan(s.pool.QueryRow(ctx, `SELECT `+gatewayColumns+` FROM payment_gateway_configs WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "payment gateway")
	}
	return cfg, nil
}

// Upsert inserts or updates a gateway by name.
func (s *GatewayConfigStore) Upsert(ctx context.Context, cfg *GatewayConfig) error {
	merchantEnc, err := s.encryptor.Encrypt(cfg.MerchantID, merchantIDLabel)
	if err != nil {
		return fmt.Errorf("failed to encrypt merchant id: %w", err)
	}
	apiKeyEnc, err := s.encryptor.Encrypt(cfg.APIKey, apiKeyLabel)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO payment_gateway_configs (name, provider, merchant_id_enc, api_key_enc, base_url, callback_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			provider = EXCLUDED.provider,
			merchant_id_enc = EXCLUDED.merchant_id_enc,
			api_key_enc = EXCLUDED.api_key_enc,
			base_url = EXCLUDED.base_url,
			callback_url = EXCLUDED.callback_url,
			is_active = EXCLUDED.is_active
		RETURNING id, created_at
	`, cfg.Name, cfg.Provider, merchantEnc, apiKeyEnc, cfg.BaseURL, cfg.CallbackURL, cfg.IsActive).
		Scan(&cfg.ID, &cfg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert payment gateway: %w", err)
	}
	return nil
}
