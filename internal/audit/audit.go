// Package audit records who did what to which object. Entries are written
// through the job queue so a slow database never blocks a request.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/jobs"
	"github.com/gitshopapp/shopcore/internal/models"
)

const JobType = "audit.record"

type requestKey struct{}

// RequestInfo is the request metadata copied onto every entry.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	Method    string
	URL       string
}

func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, info)
}

func RequestFromContext(ctx context.Context) (RequestInfo, bool) {
	if ctx == nil {
		return RequestInfo{}, false
	}
	info, ok := ctx.Value(requestKey{}).(RequestInfo)
	return info, ok
}

// Event is what callers report. Zero Status and Priority take defaults.
type Event struct {
	UserID       *uuid.UUID
	Action       models.AuditAction
	Status       models.AuditStatus
	Priority     models.Priority
	Object       *models.ObjectRef
	ObjectRepr   string
	Changes      map[string]any
	Metadata     map[string]any
	ErrorMessage string
	// Notify forces a notification to the user even below HIGH priority.
	Notify bool
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Logger struct {
	queue    jobs.Enqueuer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewLogger(queue jobs.Enqueuer, notifier Notifier, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{queue: queue, notifier: notifier, logger: logger, now: time.Now}
}

// Log queues the entry. If the queue rejects it the entry is written to the
// process log so it is not lost silently.
func (l *Logger) Log(ctx context.Context, ev Event) error {
	entry := l.entry(ctx, ev)

	job, err := jobs.NewJob(JobType, entry)
	if err == nil {
		err = l.queue.Enqueue(ctx, job)
	}
	if err != nil {
		l.logger.Error("failed to queue audit entry",
			"error", err,
			"audit_id", entry.ID,
			"action", entry.Action,
			"status", entry.Status,
			"priority", entry.Priority,
			"object", objectLabel(entry),
			"audit_error", entry.ErrorMessage,
		)
	}

	if entry.UserID != nil && (entry.Priority == models.PriorityHigh || ev.Notify) && l.notifier != nil {
		notifyErr := l.notifier.Notify(ctx, models.Notification{
			UserID:   *entry.UserID,
			Subject:  "Security alert",
			Message:  fmt.Sprintf("High-priority action %s performed on %s.", entry.Action, objectLabel(entry)),
			Priority: models.PriorityHigh,
			Channels: []models.Channel{models.ChannelInApp, models.ChannelWebsocket},
			Category: "audit",
			Metadata: map[string]any{"audit_id": entry.ID.String()},
		})
		if notifyErr != nil {
			l.logger.Warn("failed to queue audit notification", "error", notifyErr, "audit_id", entry.ID)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to queue audit entry: %w", err)
	}
	return nil
}

func (l *Logger) entry(ctx context.Context, ev Event) models.AuditEntry {
	entry := models.AuditEntry{
		ID:           uuid.New(),
		UserID:       ev.UserID,
		Action:       ev.Action,
		Status:       ev.Status,
		Priority:     ev.Priority,
		Object:       ev.Object,
		ObjectRepr:   ev.ObjectRepr,
		Changes:      ev.Changes,
		Metadata:     map[string]any{},
		ErrorMessage: ev.ErrorMessage,
		CreatedAt:    l.now().UTC(),
	}
	if entry.Status == "" {
		entry.Status = models.AuditSuccess
	}
	if entry.Priority == "" {
		entry.Priority = entry.Action.DefaultPriority()
	}
	for k, v := range ev.Metadata {
		entry.Metadata[k] = v
	}

	if info, ok := RequestFromContext(ctx); ok {
		entry.IPAddress = info.IPAddress
		entry.UserAgent = info.UserAgent
		entry.Metadata["url"] = info.URL
		entry.Metadata["method"] = info.Method
		entry.Metadata["ip_address"] = info.IPAddress
		entry.Metadata["user_agent"] = info.UserAgent
	}
	return entry
}

func objectLabel(entry models.AuditEntry) string {
	switch {
	case entry.ObjectRepr != "":
		return entry.ObjectRepr
	case entry.Object != nil:
		return entry.Object.String()
	default:
		return "system"
	}
}

type Store interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
}

// NewJobHandler persists queued entries. Inserts are keyed by entry id so
// redelivery is harmless.
func NewJobHandler(store Store) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		var entry models.AuditEntry
		if err := job.Decode(&entry); err != nil {
			return err
		}
		return store.Insert(ctx, &entry)
	}
}
