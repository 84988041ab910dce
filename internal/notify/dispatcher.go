// Package notify queues user notifications and delivers them over the
// in-app, websocket and email channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/jobs"
	"github.com/gitshopapp/shopcore/internal/models"
)

const (
	DeliverJobType = "notification.deliver"
	StaffJobType   = "notification.staff"
)

// Dispatcher turns notification requests into queued delivery jobs. It never
// waits for delivery.
type Dispatcher struct {
	jobs   jobs.Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(queue jobs.Enqueuer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{jobs: queue, logger: logger, now: time.Now}
}

func (d *Dispatcher) prepare(n *models.Notification) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if len(n.Channels) == 0 {
		n.Channels = append([]models.Channel(nil), models.DefaultChannels...)
	}
	if n.Priority == "" {
		n.Priority = models.PriorityLow
	}
	n.Status = models.NotificationPending
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
}

// Notify queues one notification for n.UserID.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) error {
	if n.UserID == uuid.Nil {
		return fmt.Errorf("notification recipient is required")
	}
	d.prepare(&n)

	job, err := jobs.NewJob(DeliverJobType, n)
	if err != nil {
		return err
	}
	if err := d.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// NotifyStaff queues a fan-out job that sends a copy of n to every staff user.
func (d *Dispatcher) NotifyStaff(ctx context.Context, n models.Notification) error {
	d.prepare(&n)

	job, err := jobs.NewJob(StaffJobType, n)
	if err != nil {
		return err
	}
	if err := d.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to queue staff notification: %w", err)
	}
	return nil
}

// staffCopyID is stable per template and recipient so a retried fan-out
// does not create duplicates.
func staffCopyID(templateID, userID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(templateID, userID[:])
}
