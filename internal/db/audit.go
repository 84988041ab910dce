package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Insert is idempotent on the entry id so redelivered jobs do not duplicate rows.
func (s *AuditStore) Insert(ctx context.Context, e *AuditEntry) error {
	kind, objectID := refColumns(e.Object)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action_type, status, priority, ip_address, user_agent,
		                        object_kind, object_id, object_repr, changes, metadata, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.UserID, string(e.Action), string(e.Status), string(e.Priority), e.IPAddress, e.UserAgent,
		kind, objectID, e.ObjectRepr, nonNilMap(e.Changes), nonNilMap(e.Metadata), e.ErrorMessage, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
