package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// Redemption records a coupon applied to a purchase.
type Redemption struct {
	ID             string
	CouponID       string
	Code           string
	PurchaseAmount decimal.Decimal
	Discount       decimal.Decimal
	FinalPrice     decimal.Decimal
	Reference      string
	RedeemedAt     time.Time
}

// Repository persists redemption records.
type Repository interface {
	// Record takes one use of the coupon r.Code and stores r as a single
	// unit: either both happen or neither does. It returns
	// coupon.ErrUsageLimitReached when the coupon is exhausted or inactive
	// and coupon.ErrNotFound when it does not exist.
	Record(ctx context.Context, r *Redemption) error
}

// Publisher announces completed redemptions to downstream consumers.
type Publisher interface {
	PublishRedeemed(ctx context.Context, r *Redemption) error
}

// RejectedError wraps a validation rejection so it can travel as an error
// through Redeem.
type RejectedError struct {
	Code     string
	Rejected coupon.Rejected
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coupon %s rejected: %s", e.Code, e.Rejected.Message)
}

// Unwrap exposes the kind's sentinel error (coupon.ErrExpired, ...).
func (e *RejectedError) Unwrap() error {
	return e.Rejected.Err()
}
