package coupon

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Validator checks a coupon snapshot against a purchase amount and computes
// the resulting discount. It holds no mutable state and is safe for
// concurrent use.
type Validator struct {
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the wall clock used by Validate.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// NewValidator creates a Validator that evaluates date windows against
// time.Now unless WithClock is given.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate evaluates c at the validator's current time. The clock is read
// once per call.
func (v *Validator) Validate(c *Coupon, purchaseAmount float64) Result {
	return Validate(c, purchaseAmount, v.now())
}

// ValidateAt evaluates c at the given reference instant.
func (v *Validator) ValidateAt(c *Coupon, purchaseAmount float64, at time.Time) Result {
	return Validate(c, purchaseAmount, at)
}

// Validate runs the integrity, amount, eligibility and computation stages in
// order and returns the first rejection, or the applied prices.
func Validate(c *Coupon, purchaseAmount float64, at time.Time) Result {
	if r, ok := CheckIntegrity(c.DiscountType, c.DiscountValue); !ok {
		return r
	}
	if !isPositiveFinite(purchaseAmount) {
		return reject(KindInvalidPurchaseAmount)
	}
	if r, ok := checkEligibility(c, purchaseAmount, at); !ok {
		return r
	}
	return compute(c, purchaseAmount)
}

// CheckIntegrity reports whether a discount declaration is well formed,
// independent of any purchase. The generic finiteness check wins over the
// percentage range check.
func CheckIntegrity(t DiscountType, value float64) (Rejected, bool) {
	if !isPositiveFinite(value) {
		return reject(KindInvalidDiscountValue), false
	}
	if t == DiscountPercentage && value > 100 {
		return reject(KindInvalidPercentage), false
	}
	return Rejected{}, true
}

func checkEligibility(c *Coupon, amount float64, at time.Time) (Rejected, bool) {
	if !c.IsActive {
		return reject(KindInactive), false
	}
	if c.MaxUsageCount != nil && c.CurrentUsageCount >= *c.MaxUsageCount {
		return reject(KindExhausted), false
	}
	if at.Before(c.ValidFrom) {
		return reject(KindNotYetValid), false
	}
	if c.ValidUntil != nil && at.After(*c.ValidUntil) {
		return reject(KindExpired), false
	}
	if c.MinPurchaseAmount != nil && amount < *c.MinPurchaseAmount {
		return Rejected{
			Kind:    KindBelowMinimumPurchase,
			Message: fmt.Sprintf("Compra mínima de %s requerida", formatAmount(*c.MinPurchaseAmount)),
		}, false
	}
	return Rejected{}, true
}

// compute never fails; callers reach it only after every check passed.
func compute(c *Coupon, purchaseAmount float64) Applied {
	amount := decimal.NewFromFloat(purchaseAmount)
	value := decimal.NewFromFloat(c.DiscountValue)

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(value).Div(hundred)
	default:
		discount = decimal.Min(value, amount)
	}

	final := floorAtZero(amount.Sub(discount)).Round(2)
	// Half-up rounding of a sub-cent amount could push the price above
	// what the customer was quoted.
	final = decimal.Min(final, amount.RoundFloor(2))

	return Applied{
		Discount:   floorAtZero(discount).Round(2),
		FinalPrice: final,
	}
}

func isPositiveFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// formatAmount renders v without float noise (50 -> "50", 19.9 -> "19.9").
func formatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return decimal.NewFromFloat(v).String()
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
