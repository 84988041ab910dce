package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CartStore struct {
	pool *pgxpool.Pool
}

func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

// GetByUser returns the user's cart with live variant pricing. ErrNotFound when there is none.
func (s *CartStore) GetByUser(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	cart := &Cart{}
	var owner uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, session_id, created_at, updated_at
		FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.ID, &owner, &cart.SessionID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "cart")
	}
	cart.UserID = &owner

	rows, err := s.pool.Query(ctx, `
		SELECT ci.id, ci.variant_id, p.id, p.category_id,
		       CASE WHEN v.name = '' THEN p.name ELSE p.name || ' - ' || v.name END,
		       ci.quantity, p.base_price, v.additional_price
		FROM cart_items ci
		JOIN product_variants v ON v.id = ci.variant_id
		JOIN products p ON p.id = v.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.created_at, ci.id
	`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item CartItem
		if err := rows.Scan(&item.ID, &item.VariantID, &item.ProductID, &item.CategoryID, &item.Name,
			&item.Quantity, &item.BasePrice, &item.AdditionalPrice); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartStore) Delete(ctx context.Context, cartID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	return err
}
