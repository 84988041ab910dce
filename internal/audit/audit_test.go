package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/jobs"
	"github.com/gitshopapp/shopcore/internal/models"
)

type fakeQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeNotifier struct {
	sent []models.Notification
}

func (n *fakeNotifier) Notify(_ context.Context, notification models.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

type fakeStore struct {
	entries []models.AuditEntry
}

func (s *fakeStore) Insert(_ context.Context, entry *models.AuditEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func decodeEntry(t *testing.T, job jobs.Job) models.AuditEntry {
	t.Helper()
	var entry models.AuditEntry
	if err := job.Decode(&entry); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return entry
}

func TestLogger_DefaultsAndRequestMetadata(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	notifier := &fakeNotifier{}
	logger := NewLogger(queue, notifier, nil)
	logger.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	userID := uuid.New()
	ctx := WithRequest(context.Background(), RequestInfo{
		IPAddress: "203.0.113.9",
		UserAgent: "test-agent",
		Method:    "POST",
		URL:       "/orders/",
	})

	err := logger.Log(ctx, Event{UserID: &userID, Action: models.AuditCreate, Object: models.Ref(models.KindOrder, uuid.New())})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Type != JobType {
		t.Fatalf("expected one audit job, got %+v", queue.jobs)
	}

	entry := decodeEntry(t, queue.jobs[0])
	if entry.Status != models.AuditSuccess || entry.Priority != models.PriorityMedium {
		t.Fatalf("expected SUCCESS/MED defaults, got %s/%s", entry.Status, entry.Priority)
	}
	if entry.IPAddress != "203.0.113.9" || entry.Metadata["url"] != "/orders/" || entry.Metadata["method"] != "POST" {
		t.Fatalf("expected request metadata, got %+v", entry)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("medium priority entries should not notify")
	}
}

func TestLogger_HighPriorityNotifiesUser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		event      Event
		wantNotify bool
		wantLabel  string
	}{
		{
			name:       "explicit high priority",
			event:      Event{Action: models.AuditCreate, Status: models.AuditFailed, Priority: models.PriorityHigh, ObjectRepr: "Payment TC-1"},
			wantNotify: true,
			wantLabel:  "High-priority action CREATE performed on Payment TC-1.",
		},
		{
			name:       "delete defaults to high",
			event:      Event{Action: models.AuditDelete},
			wantNotify: true,
			wantLabel:  "High-priority action DELETE performed on system.",
		},
		{
			name:       "notify flag",
			event:      Event{Action: models.AuditUpdate, Notify: true, ObjectRepr: "Order 1"},
			wantNotify: true,
			wantLabel:  "High-priority action UPDATE performed on Order 1.",
		},
		{
			name:  "view stays quiet",
			event: Event{Action: models.AuditView},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			notifier := &fakeNotifier{}
			logger := NewLogger(&fakeQueue{}, notifier, nil)
			userID := uuid.New()
			tt.event.UserID = &userID

			if err := logger.Log(context.Background(), tt.event); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantNotify {
				if len(notifier.sent) != 0 {
					t.Fatalf("expected no notification, got %+v", notifier.sent)
				}
				return
			}
			if len(notifier.sent) != 1 {
				t.Fatalf("expected one notification, got %d", len(notifier.sent))
			}
			n := notifier.sent[0]
			if n.UserID != userID || n.Message != tt.wantLabel || n.Priority != models.PriorityHigh {
				t.Fatalf("unexpected notification: %+v", n)
			}
		})
	}
}

func TestLogger_SystemEventWithoutUserDoesNotNotify(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	notifier := &fakeNotifier{}
	logger := NewLogger(queue, notifier, nil)

	if err := logger.Log(context.Background(), Event{Action: models.AuditSystem, Status: models.AuditFailed, ErrorMessage: "Invalid tracking code"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := decodeEntry(t, queue.jobs[0])
	if entry.Priority != models.PriorityHigh || entry.ErrorMessage != "Invalid tracking code" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("expected no notification without a user")
	}
}

func TestLogger_QueueFailureIsReturned(t *testing.T) {
	t.Parallel()

	logger := NewLogger(&fakeQueue{err: errors.New("redis down")}, nil, nil)
	if err := logger.Log(context.Background(), Event{Action: models.AuditCreate}); err == nil {
		t.Fatal("expected queue error to be returned")
	}
}

func TestJobHandler_Inserts(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	handler := NewJobHandler(store)
	entry := models.AuditEntry{ID: uuid.New(), Action: models.AuditUpdate, Status: models.AuditSuccess, Priority: models.PriorityMedium}
	job, err := jobs.NewJob(JobType, entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.entries) != 1 || store.entries[0].ID != entry.ID {
		t.Fatalf("expected entry to be inserted, got %+v", store.entries)
	}
}
