package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/shopcore/internal/models"
)

type RefundStore struct {
	pool *pgxpool.Pool
}

func NewRefundStore(pool *pgxpool.Pool) *RefundStore {
	return &RefundStore{pool: pool}
}

func (s *RefundStore) Create(ctx context.Context, r *Refund) error {
	r.Status = models.RefundPending
	err := s.pool.QueryRow(ctx, `
		INSERT INTO refunds (payment_id, user_id, amount, reason, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, r.PaymentID, r.UserID, r.Amount, r.Reason, string(r.Status)).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert refund: %w", err)
	}
	return nil
}

func (s *RefundStore) GetByID(ctx context.Context, id uuid.UUID) (*Refund, error) {
	r := &Refund{}
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, payment_id, user_id, amount, reason, status, created_at, updated_at
		FROM refunds WHERE id = $1
	`, id).Scan(&r.ID, &r.PaymentID, &r.UserID, &r.Amount, &r.Reason, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "refund")
	}
	r.Status = models.RefundStatus(status)
	return r, nil
}

// Approve marks the refund approved and the payment refunded together.
func (s *RefundStore) Approve(ctx context.Context, id uuid.UUID) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var paymentID uuid.UUID
		err := tx.QueryRow(ctx, `
			UPDATE refunds SET status = 'approved', updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
			RETURNING payment_id
		`, id).Scan(&paymentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: expected pending refund", ErrInvalidStatusTransition)
			}
			return fmt.Errorf("failed to approve refund: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE payments SET status = 'refunded', updated_at = NOW()
			WHERE id = $1 AND status = 'success'
		`, paymentID)
		if err != nil {
			return fmt.Errorf("failed to mark payment refunded: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: expected successful payment", ErrInvalidStatusTransition)
		}
		return nil
	})
}

func (s *RefundStore) Reject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE refunds SET status = 'rejected', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reject refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending refund", ErrInvalidStatusTransition)
	}
	return nil
}
