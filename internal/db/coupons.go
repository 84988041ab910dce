package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Redemption errors. They can surface even after validation passed when a
// concurrent checkout claimed the last use first.
var (
	ErrCouponExhausted   = errors.New("coupon usage limit reached")
	ErrCouponAlreadyUsed = errors.New("coupon already used by this user")
)

type CouponStore struct {
	pool *pgxpool.Pool
}

func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

const couponColumns = `
	c.id, c.code, d.id, d.discount_type, d.value, c.valid_from, c.valid_until,
	c.max_usage, c.usage_count, c.min_order_amount, c.one_per_user, c.is_active,
	COALESCE(ARRAY(SELECT cc.category_id FROM coupon_categories cc WHERE cc.coupon_id = c.id), '{}')
`

func scanCoupon(row pgx.Row) (*Coupon, error) {
	c := &Coupon{}
	var discountType string
	err := row.Scan(&c.ID, &c.Code, &c.Discount.ID, &discountType, &c.Discount.Value, &c.ValidFrom, &c.ValidUntil,
		&c.MaxUsage, &c.UsageCount, &c.MinOrderAmount, &c.OnePerUser, &c.IsActive, &c.ApplicableCategories)
	if err != nil {
		return nil, err
	}
	c.Discount.Type = DiscountType(discountType)
	return c, nil
}

func (s *CouponStore) GetByID(ctx context.Context, id uuid.UUID) (*Coupon, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons c JOIN discounts d ON d.id = c.discount_id WHERE c.id = $1`, id)
	c, err := scanCoupon(row)
	if err != nil {
		return nil, notFound(err, "coupon")
	}
	return c, nil
}

func (s *CouponStore) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons c JOIN discounts d ON d.id = c.discount_id WHERE c.code = $1`, code)
	c, err := scanCoupon(row)
	if err != nil {
		return nil, notFound(err, "coupon")
	}
	return c, nil
}

func (s *CouponStore) HasUsage(ctx context.Context, couponID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2)
	`, couponID, userID).Scan(&exists)
	return exists, err
}

// Release undoes a redemption made for an order whose payment never started.
func (s *CouponStore) Release(ctx context.Context, couponID, orderID uuid.UUID) error {
	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM coupon_usages WHERE coupon_id = $1 AND order_id = $2`, couponID, orderID)
		if err != nil {
			return fmt.Errorf("failed to delete coupon usage: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE coupons SET usage_count = usage_count - 1 WHERE id = $1 AND usage_count > 0`, couponID)
		return err
	})
}

// redeemCoupon claims one use of the coupon inside tx. The counter update and
// the usage insert are both guarded so concurrent checkouts cannot overshoot.
func redeemCoupon(ctx context.Context, tx pgx.Tx, couponID, userID, orderID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE coupons SET usage_count = usage_count + 1
		WHERE id = $1 AND (max_usage IS NULL OR usage_count < max_usage)
	`, couponID)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponExhausted
	}

	tag, err = tx.Exec(ctx, `
		INSERT INTO coupon_usages (coupon_id, user_id, order_id)
		SELECT c.id, $2, $3 FROM coupons c
		WHERE c.id = $1
		  AND (NOT c.one_per_user OR NOT EXISTS (
		      SELECT 1 FROM coupon_usages u WHERE u.coupon_id = c.id AND u.user_id = $2))
	`, couponID, userID, orderID)
	if err != nil {
		return fmt.Errorf("failed to record coupon usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCouponAlreadyUsed
	}
	return nil
}
