package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/gitshopapp/shopcore/internal/logging"
	"github.com/gitshopapp/shopcore/internal/observability"
)

// Handler processes one job. Handlers must be idempotent because a job can be
// delivered more than once.
type Handler func(ctx context.Context, job Job) error

type burier interface {
	Bury(ctx context.Context, job Job) error
}

// staleRequeuer is implemented by queues that keep claimed jobs somewhere a
// crashed process can leave them.
type staleRequeuer interface {
	RequeueStale(ctx context.Context) (int, error)
}

type WorkerOptions struct {
	Concurrency int
	MaxAttempts int
}

// Worker runs a fixed pool of goroutines that receive from a queue and
// dispatch by job type.
type Worker struct {
	queue       Queue
	logger      *slog.Logger
	concurrency int
	maxAttempts int

	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(queue Queue, logger *slog.Logger, opts WorkerOptions) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Worker{
		queue:       queue,
		logger:      logger,
		concurrency: opts.Concurrency,
		maxAttempts: opts.MaxAttempts,
		handlers:    map[string]Handler{},
	}
}

func (w *Worker) Handle(jobType string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start recovers jobs a previous process claimed but never finished, then
// launches the receive loops.
func (w *Worker) Start(ctx context.Context) {
	if r, ok := w.queue.(staleRequeuer); ok {
		moved, err := r.RequeueStale(ctx)
		if err != nil {
			w.logger.Error("failed to requeue stale jobs", "error", err, "requeued", moved)
		} else if moved > 0 {
			w.logger.Warn("requeued stale jobs", "count", moved)
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	w.logger.Info("job workers started", "concurrency", w.concurrency)
}

// Stop cancels the receive loops and waits for in-flight jobs, up to the
// context deadline.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		job, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive job", "worker", id, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		w.process(context.WithoutCancel(ctx), job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	ctx, logger := logging.With(ctx, w.logger, "job_id", job.ID, "job_type", job.Type, "attempt", job.Attempts+1)
	meter := observability.MeterFromContext(ctx)
	outcome := func(result string) {
		meter.Count("jobs.processed", 1, sentry.WithAttributes(
			attribute.String("type", job.Type),
			attribute.String("outcome", result),
		))
	}

	w.mu.RLock()
	handler, ok := w.handlers[job.Type]
	w.mu.RUnlock()
	if !ok {
		logger.Warn("no handler registered for job type")
		outcome("unhandled")
		_ = w.queue.Ack(ctx, job) //nolint
		return
	}

	start := time.Now()
	err := handler(ctx, job)
	meter.Distribution("jobs.duration", float64(time.Since(start).Milliseconds()), sentry.WithUnit(sentry.UnitMillisecond))
	if err == nil {
		outcome("success")
		if ackErr := w.queue.Ack(ctx, job); ackErr != nil {
			logger.Error("failed to ack job", "error", ackErr)
		}
		return
	}

	if job.Attempts+1 < w.maxAttempts {
		logger.Warn("job failed, retrying", "error", err)
		outcome("retry")
		if retryErr := w.queue.Retry(ctx, job); retryErr != nil {
			outcome("dropped")
			logger.Error("failed to retry job", "error", retryErr, "cause", err)
		}
		return
	}

	logger.Error("job failed permanently", "error", err)
	outcome("dead")
	if b, ok := w.queue.(burier); ok {
		if buryErr := b.Bury(ctx, job); buryErr != nil {
			logger.Error("failed to bury job", "error", buryErr)
		}
		return
	}
	_ = w.queue.Ack(ctx, job) //nolint
}
