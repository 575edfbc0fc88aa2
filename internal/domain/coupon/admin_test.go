package coupon

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	coupons   map[string]*Coupon
	createErr error
	listArgs  [2]int
}

func newMemRepo() *memRepo {
	return &memRepo{coupons: make(map[string]*Coupon)}
}

func (m *memRepo) FindByCode(_ context.Context, code string) (*Coupon, error) {
	c, ok := m.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *memRepo) Create(_ context.Context, c *Coupon) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.coupons[c.Code]; ok {
		return ErrDuplicateCode
	}
	m.coupons[c.Code] = c
	return nil
}

func (m *memRepo) Deactivate(_ context.Context, code string) error {
	c, ok := m.coupons[code]
	if !ok {
		return ErrNotFound
	}
	c.IsActive = false
	return nil
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]Coupon, error) {
	m.listArgs = [2]int{limit, offset}
	out := make([]Coupon, 0, len(m.coupons))
	for _, c := range m.coupons {
		out = append(out, *c)
	}
	return out, nil
}

func newTestAdmin(repo Repository) *Admin {
	a := NewAdmin(repo)
	a.now = func() time.Time { return fixedNow }
	return a
}

func TestAdmin_Create(t *testing.T) {
	repo := newMemRepo()
	a := newTestAdmin(repo)

	c, err := a.Create(context.Background(), CreateRequest{
		Code:          "  summer25 ",
		DiscountType:  DiscountPercentage,
		DiscountValue: 25,
		MaxUsageCount: ptr(100),
		Description:   "Summer sale",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "SUMMER25", c.Code)
	assert.True(t, c.IsActive)
	assert.Equal(t, 0, c.CurrentUsageCount)
	assert.Equal(t, fixedNow, c.ValidFrom)
	assert.Equal(t, fixedNow, c.CreatedAt)
	assert.Same(t, c, repo.coupons["SUMMER25"])
}

func TestAdmin_CreateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		req    CreateRequest
		reason string
	}{
		{
			name:   "empty code",
			req:    CreateRequest{Code: "   ", DiscountType: DiscountFixed, DiscountValue: 5},
			reason: "code is required",
		},
		{
			name:   "unknown type",
			req:    CreateRequest{Code: "X", DiscountType: "bogo", DiscountValue: 5},
			reason: `unsupported discount type "bogo"`,
		},
		{
			name:   "zero value",
			req:    CreateRequest{Code: "X", DiscountType: DiscountFixed, DiscountValue: 0},
			reason: ErrInvalidDiscountValue.Error(),
		},
		{
			name:   "percentage above 100",
			req:    CreateRequest{Code: "X", DiscountType: DiscountPercentage, DiscountValue: 100.5},
			reason: ErrInvalidPercentage.Error(),
		},
		{
			name:   "negative max usage",
			req:    CreateRequest{Code: "X", DiscountType: DiscountFixed, DiscountValue: 5, MaxUsageCount: ptr(-1)},
			reason: "max usage count must not be negative",
		},
		{
			name:   "max usage beyond int32",
			req:    CreateRequest{Code: "X", DiscountType: DiscountFixed, DiscountValue: 5, MaxUsageCount: ptr(math.MaxInt32 + 1)},
			reason: "max usage count must not exceed 2147483647",
		},
		{
			name:   "negative minimum purchase",
			req:    CreateRequest{Code: "X", DiscountType: DiscountFixed, DiscountValue: 5, MinPurchaseAmount: ptr(-0.01)},
			reason: "minimum purchase amount must not be negative",
		},
		{
			name: "window inverted",
			req: CreateRequest{
				Code: "X", DiscountType: DiscountFixed, DiscountValue: 5,
				ValidFrom:  ptr(fixedNow),
				ValidUntil: ptr(fixedNow.Add(-time.Second)),
			},
			reason: "valid until precedes valid from",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			_, err := newTestAdmin(repo).Create(context.Background(), tt.req)

			var invalid *InvalidCouponError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.reason, invalid.Reason)
			assert.Empty(t, repo.coupons)
		})
	}
}

func TestAdmin_CreateMaxInt32UsageAccepted(t *testing.T) {
	repo := newMemRepo()
	c, err := newTestAdmin(repo).Create(context.Background(), CreateRequest{
		Code: "BIG", DiscountType: DiscountFixed, DiscountValue: 1, MaxUsageCount: ptr(math.MaxInt32),
	})
	require.NoError(t, err)
	require.NotNil(t, c.MaxUsageCount)
	assert.Equal(t, math.MaxInt32, *c.MaxUsageCount)
}

func TestAdmin_CreateDuplicate(t *testing.T) {
	repo := newMemRepo()
	a := newTestAdmin(repo)
	req := CreateRequest{Code: "DUP", DiscountType: DiscountFixed, DiscountValue: 5}

	_, err := a.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = a.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestAdmin_CreateStoreError(t *testing.T) {
	repo := newMemRepo()
	repo.createErr = errors.New("connection reset")

	_, err := newTestAdmin(repo).Create(context.Background(), CreateRequest{
		Code: "ERR", DiscountType: DiscountFixed, DiscountValue: 5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create coupon")
}

func TestAdmin_GetAndDeactivate(t *testing.T) {
	repo := newMemRepo()
	a := newTestAdmin(repo)
	ctx := context.Background()

	_, err := a.Create(ctx, CreateRequest{Code: "OFF10", DiscountType: DiscountFixed, DiscountValue: 10})
	require.NoError(t, err)

	c, err := a.Get(ctx, "off10")
	require.NoError(t, err)
	assert.True(t, c.IsActive)

	require.NoError(t, a.Deactivate(ctx, "off10"))

	c, err = a.Get(ctx, "OFF10")
	require.NoError(t, err)
	assert.False(t, c.IsActive)

	res := Validate(c, 50, fixedNow)
	rej, ok := res.(Rejected)
	require.True(t, ok)
	assert.Equal(t, KindInactive, rej.Kind)

	_, err = a.Get(ctx, "MISSING")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, a.Deactivate(ctx, "MISSING"), ErrNotFound)
}

func TestAdmin_ListClampsPaging(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int
		want          [2]int
	}{
		{name: "zero limit", limit: 0, offset: 0, want: [2]int{1, 0}},
		{name: "within range", limit: 20, offset: 40, want: [2]int{20, 40}},
		{name: "over max", limit: 1000, offset: 0, want: [2]int{100, 0}},
		{name: "negative offset", limit: 10, offset: -5, want: [2]int{10, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			_, err := newTestAdmin(repo).List(context.Background(), tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, repo.listArgs)
		})
	}
}
