package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the purchase amount, 0-100.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount, capped at the purchase amount.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrNotFound is returned by repositories when no coupon matches a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when creating a coupon whose code already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrUsageLimitReached is returned when recording a redemption could not
	// take a use because the cap was hit or the coupon went inactive in the
	// meantime.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
)

// Coupon is an immutable snapshot of a discount policy record. The
// validator never mutates it; usage is counted when a redemption is recorded.
type Coupon struct {
	ID                string
	Code              string
	DiscountType      DiscountType
	DiscountValue     float64
	MaxUsageCount     *int
	CurrentUsageCount int
	ValidFrom         time.Time
	ValidUntil        *time.Time
	IsActive          bool
	MinPurchaseAmount *float64
	Description       string
	CreatedAt         time.Time
}

// NormalizeCode returns the canonical form used for lookups and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of coupon records.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c *Coupon) error
	Deactivate(ctx context.Context, code string) error
	List(ctx context.Context, limit, offset int) ([]Coupon, error)
}
