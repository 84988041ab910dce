// Package cache keeps short-lived keys for webhook deduplication and
// Idempotency-Key replay.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("key not found")

// Provider stores string values with a TTL.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider string
	Redis    *redis.Client
	// MemorySize bounds the in-process provider. Zero uses the default.
	MemorySize int
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider(cfg.MemorySize)
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis client is required for the redis cache provider")
		}
		return NewRedisProvider(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

func WebhookKey(source, eventID string) string {
	return fmt.Sprintf("webhook:%s:%s", source, eventID)
}

// IdempotencyKey scopes a client supplied key to the caller so two users
// cannot replay each other's responses.
func IdempotencyKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}
