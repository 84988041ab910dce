package jobs

import (
	"context"
	"fmt"
	"sync"
)

const defaultMemoryQueueSize = 1024

// MemoryQueue keeps jobs in process. Pending jobs are lost on restart.
type MemoryQueue struct {
	mu     sync.RWMutex
	jobs   chan Job
	closed bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

// Enqueue never blocks: a full buffer is reported as ErrQueueFull so request
// handlers and workers are not held up by a backlog.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s job %s", ErrQueueFull, job.Type, job.ID)
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (Job, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrClosed
		}
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, job Job) error {
	_ = ctx
	_ = job
	return nil
}

// Retry requeues without blocking; with the buffer full the job is lost.
func (q *MemoryQueue) Retry(ctx context.Context, job Job) error {
	job.Attempts++
	return q.Enqueue(ctx, job)
}

// Close stops accepting jobs. Jobs already queued can still be received.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
