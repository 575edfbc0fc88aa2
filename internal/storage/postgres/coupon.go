package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	couponColumns = `id::text, code, discount_type, discount_value, max_usage_count,
		current_usage_count, valid_from, valid_until, is_active, min_purchase_amount,
		description, created_at`

	// Inactive coupons are returned too: the validator reports them.
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons
		ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`

	createCouponSQL = `INSERT INTO coupons (id, code, discount_type, discount_value,
		max_usage_count, current_usage_count, valid_from, valid_until, is_active,
		min_purchase_amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	deactivateCouponSQL = `UPDATE coupons SET is_active = FALSE WHERE code = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code, active or not.
// Returns coupon.ErrNotFound when no row matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// Create inserts a new coupon. Returns coupon.ErrDuplicateCode when the code
// is taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	var maxUsage *int32
	if c.MaxUsageCount != nil {
		v := int32(*c.MaxUsageCount)
		maxUsage = &v
	}
	var minPurchase decimal.NullDecimal
	if c.MinPurchaseAmount != nil {
		minPurchase = decimal.NewNullDecimal(decimal.NewFromFloat(*c.MinPurchaseAmount))
	}

	_, err := r.pool.Exec(ctx, createCouponSQL,
		c.ID, c.Code, string(c.DiscountType), decimal.NewFromFloat(c.DiscountValue),
		maxUsage, int32(c.CurrentUsageCount), c.ValidFrom, c.ValidUntil, c.IsActive,
		minPurchase, c.Description, c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return nil
}

// Deactivate clears the coupon's active flag.
func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, deactivateCouponSQL, code)
	if err != nil {
		return fmt.Errorf("deactivating coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

// List returns coupons newest first.
func (r *CouponRepository) List(ctx context.Context, limit, offset int) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		value        decimal.Decimal
		maxUsage     *int32
		usage        int32
		validUntil   *time.Time
		minPurchase  decimal.NullDecimal
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &value, &maxUsage,
		&usage, &c.ValidFrom, &validUntil, &c.IsActive, &minPurchase,
		&c.Description, &c.CreatedAt,
	)
	if err != nil {
		return c, err
	}

	c.DiscountType = coupon.DiscountType(discountType)
	c.DiscountValue = value.InexactFloat64()
	c.CurrentUsageCount = int(usage)
	if maxUsage != nil {
		v := int(*maxUsage)
		c.MaxUsageCount = &v
	}
	c.ValidUntil = validUntil
	if minPurchase.Valid {
		v := minPurchase.Decimal.InexactFloat64()
		c.MinPurchaseAmount = &v
	}
	return c, nil
}
