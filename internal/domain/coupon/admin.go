package coupon

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// InvalidCouponError reports a coupon definition that cannot be stored.
type InvalidCouponError struct {
	Reason string
}

func (e *InvalidCouponError) Error() string {
	return fmt.Sprintf("invalid coupon: %s", e.Reason)
}

// CreateRequest holds the administrative input for a new coupon.
type CreateRequest struct {
	Code              string
	DiscountType      DiscountType
	DiscountValue     float64
	MaxUsageCount     *int
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	MinPurchaseAmount *float64
	Description       string
}

// Admin manages coupon records on behalf of operators.
type Admin struct {
	repo Repository
	now  func() time.Time
}

// NewAdmin creates an Admin backed by the given Repository.
func NewAdmin(repo Repository) *Admin {
	return &Admin{repo: repo, now: time.Now}
}

// Create stores a new active coupon. The discount declaration must pass the
// same integrity check the validator applies.
func (a *Admin) Create(ctx context.Context, req CreateRequest) (*Coupon, error) {
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, &InvalidCouponError{Reason: "code is required"}
	}
	if !req.DiscountType.Valid() {
		return nil, &InvalidCouponError{Reason: fmt.Sprintf("unsupported discount type %q", req.DiscountType)}
	}
	if rej, ok := CheckIntegrity(req.DiscountType, req.DiscountValue); !ok {
		return nil, &InvalidCouponError{Reason: rej.Message}
	}
	if req.MaxUsageCount != nil && *req.MaxUsageCount < 0 {
		return nil, &InvalidCouponError{Reason: "max usage count must not be negative"}
	}
	if req.MaxUsageCount != nil && *req.MaxUsageCount > math.MaxInt32 {
		return nil, &InvalidCouponError{Reason: fmt.Sprintf("max usage count must not exceed %d", math.MaxInt32)}
	}
	if req.MinPurchaseAmount != nil && !(*req.MinPurchaseAmount >= 0) {
		return nil, &InvalidCouponError{Reason: "minimum purchase amount must not be negative"}
	}

	now := a.now().UTC()
	validFrom := now
	if req.ValidFrom != nil {
		validFrom = req.ValidFrom.UTC()
	}
	if req.ValidUntil != nil && req.ValidUntil.Before(validFrom) {
		return nil, &InvalidCouponError{Reason: "valid until precedes valid from"}
	}

	c := &Coupon{
		ID:                uuid.New().String(),
		Code:              code,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MaxUsageCount:     req.MaxUsageCount,
		ValidFrom:         validFrom,
		ValidUntil:        req.ValidUntil,
		IsActive:          true,
		MinPurchaseAmount: req.MinPurchaseAmount,
		Description:       req.Description,
		CreatedAt:         now,
	}
	if err := a.repo.Create(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return c, nil
}

// Get returns the coupon stored under code.
func (a *Admin) Get(ctx context.Context, code string) (*Coupon, error) {
	c, err := a.repo.FindByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get coupon")
	}
	return c, nil
}

// List returns a page of coupons. Limit is clamped to [1, 100].
func (a *Admin) List(ctx context.Context, limit, offset int) ([]Coupon, error) {
	limit = min(max(limit, 1), 100)
	offset = max(offset, 0)

	coupons, err := a.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// Deactivate flips the coupon's administrative kill-switch.
func (a *Admin) Deactivate(ctx context.Context, code string) error {
	if err := a.repo.Deactivate(ctx, NormalizeCode(code)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "deactivate coupon")
	}
	return nil
}
