package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/redemption"
)

const (
	// The cap and the active flag are re-checked under the row lock so two
	// concurrent redemptions cannot both take the last use.
	incrementCouponUsageSQL = `UPDATE coupons SET current_usage_count = current_usage_count + 1
		WHERE code = $1 AND is_active
		AND (max_usage_count IS NULL OR current_usage_count < max_usage_count)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`

	createRedemptionSQL = `INSERT INTO redemptions (id, coupon_id, code, purchase_amount,
		discount, final_price, reference, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

var _ redemption.Repository = (*RedemptionRepository)(nil)

// RedemptionRepository implements redemption.Repository backed by PostgreSQL.
type RedemptionRepository struct {
	pool *pgxpool.Pool
}

// NewRedemptionRepository returns a RedemptionRepository that uses the given pool.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// Record bumps the coupon's usage counter and inserts the redemption in one
// transaction. A failed insert rolls the bump back.
func (r *RedemptionRepository) Record(ctx context.Context, rd *redemption.Redemption) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := takeUse(ctx, tx, rd.Code); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, createRedemptionSQL,
			rd.ID, rd.CouponID, rd.Code, rd.PurchaseAmount,
			rd.Discount, rd.FinalPrice, rd.Reference, rd.RedeemedAt,
		)
		if err != nil {
			return fmt.Errorf("creating redemption %q: %w", rd.ID, err)
		}
		return nil
	})
}

func takeUse(ctx context.Context, tx pgx.Tx, code string) error {
	tag, err := tx.Exec(ctx, incrementCouponUsageSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := tx.QueryRow(ctx, couponExistsSQL, code).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", code, err)
	}
	if !exists {
		return coupon.ErrNotFound
	}
	return coupon.ErrUsageLimitReached
}
