// Package cache wraps the coupon repositories with a Redis read-through cache.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/redemption"
	"github.com/xenking/coupon-engine/internal/wire"
)

const keyPrefix = "coupon:v1:"

// Client is the subset of the go-redis API the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository caches FindByCode results and drops the entry on every
// write to the same code. Redis failures degrade to the wrapped repository.
type CouponRepository struct {
	next coupon.Repository
	rdb  Client
	ttl  time.Duration
}

// New returns a caching decorator around next.
func New(next coupon.Repository, rdb Client, ttl time.Duration) *CouponRepository {
	return &CouponRepository{next: next, rdb: rdb, ttl: ttl}
}

func key(code string) string { return keyPrefix + code }

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	lg := zctx.From(ctx)

	data, err := r.rdb.Get(ctx, key(code)).Bytes()
	switch {
	case err == nil:
		c, err := wire.UnmarshalCoupon(data)
		if err == nil {
			return c, nil
		}
		lg.Warn("Drop undecodable cache entry", zap.String("code", code), zap.Error(err))
		r.invalidate(ctx, code)
	case errors.Is(err, redis.Nil):
	default:
		lg.Warn("Coupon cache read failed", zap.String("code", code), zap.Error(err))
	}

	c, err := r.next.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := r.rdb.Set(ctx, key(code), wire.MarshalCoupon(c), r.ttl).Err(); err != nil {
		lg.Warn("Coupon cache write failed", zap.String("code", code), zap.Error(err))
	}
	return c, nil
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := r.next.Create(ctx, c); err != nil {
		return err
	}
	r.invalidate(ctx, c.Code)
	return nil
}

func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	err := r.next.Deactivate(ctx, code)
	r.invalidate(ctx, code)
	return err
}

func (r *CouponRepository) List(ctx context.Context, limit, offset int) ([]coupon.Coupon, error) {
	return r.next.List(ctx, limit, offset)
}

func (r *CouponRepository) invalidate(ctx context.Context, code string) {
	invalidate(ctx, r.rdb, code)
}

var _ redemption.Repository = (*RedemptionRepository)(nil)

// RedemptionRepository drops the cached coupon after every recorded
// redemption so the usage counter served by CouponRepository stays current.
type RedemptionRepository struct {
	next redemption.Repository
	rdb  Client
}

// NewRedemptions returns an invalidating decorator around next.
func NewRedemptions(next redemption.Repository, rdb Client) *RedemptionRepository {
	return &RedemptionRepository{next: next, rdb: rdb}
}

// Record invalidates the entry whatever the outcome: a rejected use
// usually means the cached counter is stale.
func (r *RedemptionRepository) Record(ctx context.Context, rd *redemption.Redemption) error {
	err := r.next.Record(ctx, rd)
	invalidate(ctx, r.rdb, rd.Code)
	return err
}

func invalidate(ctx context.Context, rdb Client, code string) {
	if err := rdb.Del(ctx, key(code)).Err(); err != nil {
		zctx.From(ctx).Warn("Coupon cache invalidation failed", zap.String("code", code), zap.Error(err))
	}
}
