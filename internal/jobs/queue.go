// Package jobs moves side effects such as audit writes and notification
// delivery off the request path with at-least-once delivery.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrClosed    = errors.New("queue closed")
	ErrQueueFull = errors.New("queue full")
)

type Job struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	raw string
}

func NewJob(jobType string, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", jobType, err)
	}
	return Job{
		ID:         uuid.New(),
		Type:       jobType,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

// Enqueuer is the producer side used by services.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Queue delivers each job at least once. A received job stays claimed until
// it is acked or retried.
type Queue interface {
	Enqueuer
	Receive(ctx context.Context) (Job, error)
	Ack(ctx context.Context, job Job) error
	Retry(ctx context.Context, job Job) error
	Close() error
}

type Config struct {
	Provider string
	Redis    *redis.Client
}

func NewQueue(cfg Config) (Queue, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryQueue(defaultMemoryQueueSize), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis client is required for the redis job queue")
		}
		return NewRedisQueue(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported job queue provider: %s", cfg.Provider)
	}
}
