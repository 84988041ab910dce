package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/email"
	"github.com/gitshopapp/shopcore/internal/jobs"
	"github.com/gitshopapp/shopcore/internal/models"
)

type Store interface {
	Insert(ctx context.Context, n *models.Notification) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.NotificationStatus, errMsg string) error
}

type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListStaffIDs(ctx context.Context) ([]uuid.UUID, error)
}

type Pusher interface {
	Push(userID uuid.UUID, payload []byte) int
}

type Mailer interface {
	SendEmail(ctx context.Context, msg *email.Email) error
}

type DelivererConfig struct {
	Store    Store
	Users    Users
	Pusher   Pusher
	Mailer   Mailer
	Renderer *email.Renderer
	Queue    jobs.Enqueuer
	AppName  string
	AppURL   string
	Logger   *slog.Logger
}

// Deliverer consumes notification jobs.
type Deliverer struct {
	store    Store
	users    Users
	pusher   Pusher
	mailer   Mailer
	renderer *email.Renderer
	queue    jobs.Enqueuer
	appName  string
	appURL   string
	logger   *slog.Logger
}

func NewDeliverer(cfg DelivererConfig) (*Deliverer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	if cfg.Mailer != nil && cfg.Renderer == nil {
		return nil, fmt.Errorf("email renderer is required when a mailer is configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Deliverer{
		store:    cfg.Store,
		users:    cfg.Users,
		pusher:   cfg.Pusher,
		mailer:   cfg.Mailer,
		renderer: cfg.Renderer,
		queue:    cfg.Queue,
		appName:  cfg.AppName,
		appURL:   cfg.AppURL,
		logger:   cfg.Logger,
	}, nil
}

// Register wires the deliverer's handlers into a worker.
func (d *Deliverer) Register(w *jobs.Worker) {
	w.Handle(DeliverJobType, d.HandleDeliver)
	w.Handle(StaffJobType, d.HandleStaff)
}

// HandleDeliver persists the notification and pushes it through its channels.
// Channel failures are recorded on the row and are not retried; store
// failures are returned so the job is retried.
func (d *Deliverer) HandleDeliver(ctx context.Context, job jobs.Job) error {
	var n models.Notification
	if err := job.Decode(&n); err != nil {
		return err
	}
	logger := d.logger.With("notification_id", n.ID, "user_id", n.UserID)

	if _, err := d.store.Insert(ctx, &n); err != nil {
		return err
	}

	var failures []string
	if n.HasChannel(models.ChannelWebsocket) && d.pusher != nil {
		payload, err := json.Marshal(websocketMessage(n))
		if err != nil {
			failures = append(failures, fmt.Sprintf("websocket: %v", err))
		} else {
			logger.Debug("pushed notification", "connections", d.pusher.Push(n.UserID, payload))
		}
	}
	if n.HasChannel(models.ChannelEmail) && d.mailer != nil {
		if err := d.sendEmail(ctx, n); err != nil {
			failures = append(failures, fmt.Sprintf("email: %v", err))
		}
	}

	if len(failures) > 0 {
		msg := strings.Join(failures, "; ")
		logger.Warn("notification delivery failed", "error", msg)
		return d.store.UpdateStatus(ctx, n.ID, models.NotificationFailed, msg)
	}
	return d.store.UpdateStatus(ctx, n.ID, models.NotificationSent, "")
}

// HandleStaff fans a notification out to every staff user.
func (d *Deliverer) HandleStaff(ctx context.Context, job jobs.Job) error {
	var template models.Notification
	if err := job.Decode(&template); err != nil {
		return err
	}

	staff, err := d.users.ListStaffIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list staff: %w", err)
	}

	var errs []error
	for _, userID := range staff {
		n := template
		n.ID = staffCopyID(template.ID, userID)
		n.UserID = userID
		copyJob, err := jobs.NewJob(DeliverJobType, n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := d.queue.Enqueue(ctx, copyJob); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Deliverer) sendEmail(ctx context.Context, n models.Notification) error {
	user, err := d.users.GetByID(ctx, n.UserID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return nil
	}

	msg, err := d.renderer.Render(ctx, &email.NotificationInfo{
		RecipientEmail: user.Email,
		Subject:        n.Subject,
		Message:        n.Message,
		Category:       n.Category,
		Priority:       string(n.Priority),
		AppName:        d.appName,
		AppURL:         d.appURL,
		SentAt:         time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return d.mailer.SendEmail(ctx, msg)
}

type wsMessage struct {
	Type         string         `json:"type"`
	Notification wsNotification `json:"notification"`
}

type wsNotification struct {
	ID        uuid.UUID       `json:"id"`
	Subject   string          `json:"subject,omitempty"`
	Message   string          `json:"message"`
	Priority  models.Priority `json:"priority"`
	Category  string          `json:"category,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func websocketMessage(n models.Notification) wsMessage {
	return wsMessage{
		Type: "notification",
		Notification: wsNotification{
			ID:        n.ID,
			Subject:   n.Subject,
			Message:   n.Message,
			Priority:  n.Priority,
			Category:  n.Category,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt,
		},
	}
}
