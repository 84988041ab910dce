package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/shopcore/internal/models"
)

type PaymentStore struct {
	pool *pgxpool.Pool
}

func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertPayment(ctx context.Context, q execQuerier, p *Payment) error {
	if p.TransactionID == "" {
		p.TransactionID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.PaymentStatusPending
	}
	kind, objectID := refColumns(p.Object)
	err := q.QueryRow(ctx, `
		INSERT INTO payments (user_id, gateway_id, amount, currency, status, transaction_id, token,
		                      object_kind, object_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, p.UserID, p.GatewayID, p.Amount, string(p.Currency), string(p.Status), p.TransactionID, p.Token,
		kind, objectID, nonNilMap(p.Metadata)).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// Create inserts a standalone pending payment, for example one that targets
// an object other than an order.
func (s *PaymentStore) Create(ctx context.Context, p *Payment) error {
	return insertPayment(ctx, s.pool, p)
}

const paymentColumns = `
	id, user_id, gateway_id, amount, currency, status, transaction_id, token,
	object_kind, object_id, metadata, created_at, updated_at
`

func scanPayment(row pgx.Row) (*Payment, error) {
	p := &Payment{}
	var currency, status string
	var kind *string
	var objectID *uuid.UUID
	err := row.Scan(&p.ID, &p.UserID, &p.GatewayID, &p.Amount, &currency, &status, &p.TransactionID, &p.Token,
		&kind, &objectID, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Currency = models.Currency(currency)
	p.Status = PaymentStatus(status)
	p.Object = refFromColumns(kind, objectID)
	return p, nil
}

func (s *PaymentStore) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return p, nil
}

func (s *PaymentStore) GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return p, nil
}

// SetGatewayReference stores the gateway token and replaces the provisional
// transaction id with the gateway tracking code.
func (s *PaymentStore) SetGatewayReference(ctx context.Context, id uuid.UUID, token, trackingCode string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments SET token = $2, transaction_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id, token, trackingCode)
	if err != nil {
		return fmt.Errorf("failed to set gateway reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending payment", ErrInvalidStatusTransition)
	}
	return nil
}

// UpdateStatus moves a payment out of from into to. Terminal payments never
// change again except success to refunded.
func (s *PaymentStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE payments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected payment to be %s", ErrInvalidStatusTransition, from)
	}
	return nil
}

func (s *PaymentStore) AddTransaction(ctx context.Context, t *Transaction) error {
	var bankResponse any
	if t.BankResponse != nil {
		bankResponse = t.BankResponse
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (payment_id, status, bank_response, error_message)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, t.PaymentID, string(t.Status), bankResponse, t.ErrorMessage).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (s *PaymentStore) ListTransactions(ctx context.Context, paymentID uuid.UUID) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, payment_id, status, bank_response, error_message, created_at
		FROM transactions WHERE payment_id = $1 ORDER BY created_at, id
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var status string
		if err := rows.Scan(&t.ID, &t.PaymentID, &status, &t.BankResponse, &t.ErrorMessage, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Status = models.TransactionStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}
