package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "jobs:pending"
	processingKey = "jobs:processing"
	deadKey       = "jobs:dead"

	receiveTimeout = 2 * time.Second
)

// RedisQueue is a reliable list queue: a received job is moved atomically to
// a processing list and only removed from there on ack.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.RPush(ctx, pendingKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s job: %w", job.Type, err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		raw, err := q.client.BLMove(ctx, pendingKey, processingKey, "LEFT", "RIGHT", receiveTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("failed to receive job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = q.client.LRem(ctx, processingKey, 1, raw).Err() //nolint
			_ = q.client.RPush(ctx, deadKey, raw).Err()         //nolint
			continue
		}
		job.raw = raw
		return job, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if err := q.client.LRem(ctx, processingKey, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Retry(ctx context.Context, job Job) error {
	raw := job.raw
	job.Attempts++
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, raw)
	pipe.RPush(ctx, pendingKey, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to retry job %s: %w", job.ID, err)
	}
	return nil
}

// Bury moves a job that exhausted its attempts to the dead list.
func (q *RedisQueue) Bury(ctx context.Context, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, job.raw)
	pipe.RPush(ctx, deadKey, job.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bury job %s: %w", job.ID, err)
	}
	return nil
}

// RequeueStale returns jobs left in the processing list by a crashed process
// to the pending list. Worker.Start calls it before receiving. Jobs another
// live process is still handling are redelivered too, which handlers already
// tolerate.
func (q *RedisQueue) RequeueStale(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, processingKey, pendingKey, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to requeue stale jobs: %w", err)
		}
		moved++
	}
}

// Close is a no-op; the redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	return nil
}
