package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/shopcore/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// CheckoutRecord is everything a checkout writes before the gateway is contacted.
type CheckoutRecord struct {
	Order    *Order
	Payment  *Payment
	CouponID *uuid.UUID
}

// CreateCheckout inserts the pending payment, the order with its items and
// first history row, and the coupon redemption in one transaction. IDs and
// timestamps are written back into rec.
func (s *OrderStore) CreateCheckout(ctx context.Context, rec CheckoutRecord) error {
	order, payment := rec.Order, rec.Payment
	if order == nil || payment == nil {
		return fmt.Errorf("order and payment are required")
	}

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertPayment(ctx, tx, payment); err != nil {
			return err
		}
		order.PaymentID = &payment.ID
		order.CouponID = rec.CouponID

		err := tx.QueryRow(ctx, `
			INSERT INTO orders (user_id, payment_id, coupon_id, subtotal_amount, tax_amount, shipping_amount,
			                    discount_amount, total_amount, status, shipping_address, billing_address, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id, created_at, updated_at
		`, order.UserID, order.PaymentID, order.CouponID, order.SubtotalAmount, order.TaxAmount, order.ShippingAmount,
			order.DiscountAmount, order.TotalAmount, string(order.Status), order.ShippingAddress, order.BillingAddress,
			nonNilMap(order.Metadata)).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO order_items (order_id, variant_id, product_id, category_id, name, quantity, price_at_time)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id
			`, item.OrderID, item.VariantID, item.ProductID, item.CategoryID, item.Name, item.Quantity, item.PriceAtTime).
				Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		if err := insertHistory(ctx, tx, order.ID, order.Status, "Initial order status"); err != nil {
			return err
		}

		payment.Object = models.Ref(models.KindOrder, order.ID)
		kind, objectID := refColumns(payment.Object)
		if _, err := tx.Exec(ctx, `UPDATE payments SET object_kind = $2, object_id = $3 WHERE id = $1`,
			payment.ID, kind, objectID); err != nil {
			return fmt.Errorf("failed to link payment to order: %w", err)
		}

		if rec.CouponID != nil {
			if err := redeemCoupon(ctx, tx, *rec.CouponID, order.UserID, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *OrderStore) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order := &Order{}
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, payment_id, coupon_id, subtotal_amount, tax_amount, shipping_amount,
		       discount_amount, total_amount, status, shipping_address, billing_address, metadata,
		       created_at, updated_at
		FROM orders WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.PaymentID, &order.CouponID, &order.SubtotalAmount, &order.TaxAmount,
		&order.ShippingAmount, &order.DiscountAmount, &order.TotalAmount, &status, &order.ShippingAddress,
		&order.BillingAddress, &order.Metadata, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "order")
	}
	order.Status = OrderStatus(status)

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, variant_id, product_id, category_id, name, quantity, price_at_time
		FROM order_items WHERE order_id = $1 ORDER BY name, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID, &item.ProductID, &item.CategoryID,
			&item.Name, &item.Quantity, &item.PriceAtTime); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	return order, rows.Err()
}

// GetByPaymentID returns the order a payment belongs to.
func (s *OrderStore) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) (*Order, error) {
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, `SELECT id FROM orders WHERE payment_id = $1`, paymentID).Scan(&id); err != nil {
		return nil, notFound(err, "order")
	}
	return s.GetByID(ctx, id)
}

// UpdateStatus moves an order from one status to another and appends a history
// row. It fails with ErrInvalidStatusTransition when the order is no longer in from.
func (s *OrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus, note string) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET status = $3, updated_at = NOW()
			WHERE id = $1 AND status = $2
		`, id, string(from), string(to))
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: expected order %s to be %s", ErrInvalidStatusTransition, id, from)
		}
		return insertHistory(ctx, tx, id, to, note)
	})
}

func (s *OrderStore) UpdateAddresses(ctx context.Context, id uuid.UUID, shipping, billing *models.Address) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET shipping_address = COALESCE($2, shipping_address),
		    billing_address = COALESCE($3, billing_address),
		    updated_at = NOW()
		WHERE id = $1
	`, id, shipping, billing)
	if err != nil {
		return fmt.Errorf("failed to update order addresses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order: %w", ErrNotFound)
	}
	return nil
}

func (s *OrderStore) History(ctx context.Context, id uuid.UUID) ([]models.OrderStatusHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, status, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.OrderStatusHistory
	for rows.Next() {
		var h models.OrderStatusHistory
		var status string
		if err := rows.Scan(&h.ID, &h.OrderID, &status, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Status = OrderStatus(status)
		history = append(history, h)
	}
	return history, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, status OrderStatus, note string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, note) VALUES ($1, $2, $3)
	`, orderID, string(status), note)
	if err != nil {
		return fmt.Errorf("failed to insert order history: %w", err)
	}
	return nil
}
