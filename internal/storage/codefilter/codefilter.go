// Package codefilter rejects lookups for codes that were never issued
// before they reach the database.
package codefilter

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const (
	loadPageSize = 100
	falsePosRate = 0.001
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository answers FindByCode with coupon.ErrNotFound when the code
// is definitely absent from the bloom filter. Until Load succeeds every
// lookup passes through.
type CouponRepository struct {
	next     coupon.Repository
	capacity uint

	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// New returns a filter sized for capacity codes.
func New(next coupon.Repository, capacity uint) *CouponRepository {
	return &CouponRepository{next: next, capacity: max(capacity, 1)}
}

// Load rebuilds the filter from every stored code and swaps it in.
func (r *CouponRepository) Load(ctx context.Context) error {
	filter := bloom.NewWithEstimates(r.capacity, falsePosRate)

	var total int
	for offset := 0; ; offset += loadPageSize {
		page, err := r.next.List(ctx, loadPageSize, offset)
		if err != nil {
			return errors.Wrap(err, "list coupons")
		}
		for _, c := range page {
			filter.AddString(c.Code)
		}
		total += len(page)
		if len(page) < loadPageSize {
			break
		}
	}

	r.mu.Lock()
	// Codes created while we were paging may only be in the old filter.
	if r.filter != nil {
		if err := filter.Merge(r.filter); err != nil {
			r.mu.Unlock()
			return errors.Wrap(err, "merge filters")
		}
	}
	r.filter = filter
	r.mu.Unlock()

	zctx.From(ctx).Info("Coupon code filter loaded", zap.Int("codes", total))
	return nil
}

// Run reloads the filter every interval until ctx is done, picking up codes
// created by other instances.
func (r *CouponRepository) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Load(ctx); err != nil && ctx.Err() == nil {
				zctx.From(ctx).Warn("Coupon code filter reload failed", zap.Error(err))
			}
		}
	}
}

// MayContain reports whether code could have been issued.
func (r *CouponRepository) MayContain(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter == nil || r.filter.TestString(code)
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	if !r.MayContain(code) {
		return nil, coupon.ErrNotFound
	}
	return r.next.FindByCode(ctx, code)
}

func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	if err := r.next.Create(ctx, c); err != nil {
		return err
	}
	r.mu.Lock()
	if r.filter != nil {
		r.filter.AddString(c.Code)
	}
	r.mu.Unlock()
	return nil
}

func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	return r.next.Deactivate(ctx, code)
}

func (r *CouponRepository) List(ctx context.Context, limit, offset int) ([]coupon.Coupon, error) {
	return r.next.List(ctx, limit, offset)
}
