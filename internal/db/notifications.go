package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/shopcore/internal/models"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Insert reports false when the notification id already exists.
func (s *NotificationStore) Insert(ctx context.Context, n *Notification) (bool, error) {
	channels := make([]string, 0, len(n.Channels))
	for _, c := range n.Channels {
		channels = append(channels, string(c))
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, subject, message, priority, channels, category, metadata, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.UserID, n.Subject, n.Message, string(n.Priority), channels, n.Category, nonNilMap(n.Metadata),
		string(models.NotificationPending), n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *NotificationStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.NotificationStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2, error = $3, sent_at = CASE WHEN $2 = 'SENT' THEN NOW() ELSE sent_at END
		WHERE id = $1
	`, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return nil
}
