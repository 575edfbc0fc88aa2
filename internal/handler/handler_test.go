package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/redemption"
)

var (
	testPepper = []byte("pepper")
	fixedNow   = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
)

const (
	adminKey  = "admin-secret"
	clientKey = "client-secret"
)

type memCoupons struct {
	mu      sync.Mutex
	coupons map[string]*coupon.Coupon
	findErr error
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	c, ok := m.coupons[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCoupons) Create(_ context.Context, c *coupon.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coupons[c.Code]; ok {
		return coupon.ErrDuplicateCode
	}
	m.coupons[c.Code] = c
	return nil
}

func (m *memCoupons) Deactivate(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[code]
	if !ok {
		return coupon.ErrNotFound
	}
	c.IsActive = false
	return nil
}

func (m *memCoupons) List(_ context.Context, limit, offset int) ([]coupon.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make([]string, 0, len(m.coupons))
	for code := range m.coupons {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	var out []coupon.Coupon
	for i, code := range codes {
		if i < offset || len(out) >= limit {
			continue
		}
		out = append(out, *m.coupons[code])
	}
	return out, nil
}

type memRedemptions struct {
	coupons *memCoupons
	created []*redemption.Redemption
	err     error
}

func (m *memRedemptions) Record(_ context.Context, r *redemption.Redemption) error {
	m.coupons.mu.Lock()
	defer m.coupons.mu.Unlock()
	c, ok := m.coupons.coupons[r.Code]
	if !ok {
		return coupon.ErrNotFound
	}
	if !c.IsActive || (c.MaxUsageCount != nil && c.CurrentUsageCount >= *c.MaxUsageCount) {
		return coupon.ErrUsageLimitReached
	}
	if m.err != nil {
		return m.err
	}
	c.CurrentUsageCount++
	m.created = append(m.created, r)
	return nil
}

type memKeys struct {
	byHash map[string]*auth.APIKeyInfo
	err    error
}

func (m *memKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return k, nil
}

func (m *memKeys) Create(_ context.Context, k *auth.APIKeyInfo) error {
	m.byHash[k.KeyHash] = k
	return nil
}

type testEnv struct {
	coupons     *memCoupons
	redemptions *memRedemptions
	keys        *memKeys
	server      http.Handler
}

func newTestEnv(t *testing.T, coupons ...*coupon.Coupon) *testEnv {
	t.Helper()

	env := &testEnv{
		coupons: &memCoupons{coupons: make(map[string]*coupon.Coupon)},
		keys:    &memKeys{byHash: make(map[string]*auth.APIKeyInfo)},
	}
	env.redemptions = &memRedemptions{coupons: env.coupons}
	for _, c := range coupons {
		env.coupons.coupons[c.Code] = c
	}
	for raw, scopes := range map[string][]string{
		adminKey:  {auth.ScopeAdmin},
		clientKey: {},
	} {
		h := auth.HashKey(testPepper, raw)
		env.keys.byHash[h] = &auth.APIKeyInfo{ID: raw, KeyHash: h, Name: raw, Scopes: scopes}
	}

	clock := func() time.Time { return fixedNow }
	svc := redemption.NewService(env.coupons, env.redemptions, redemption.WithClock(clock))
	h := NewHandler(svc, coupon.NewAdmin(env.coupons), NewAuthenticator(env.keys, testPepper))

	r := chi.NewRouter()
	h.Routes(r)
	env.server = r
	return env
}

func (e *testEnv) do(method, target, body, key string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func ptr[T any](v T) *T { return &v }

func activeCoupon(code string, t coupon.DiscountType, value float64) *coupon.Coupon {
	return &coupon.Coupon{
		ID:            "id-" + code,
		Code:          code,
		DiscountType:  t,
		DiscountValue: value,
		ValidFrom:     fixedNow.Add(-24 * time.Hour),
		IsActive:      true,
	}
}

func TestValidateCoupon(t *testing.T) {
	expired := activeCoupon("OLD", coupon.DiscountFixed, 5)
	expired.ValidUntil = ptr(fixedNow.Add(-time.Hour))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "percentage applied",
			body:       `{"code":"save20","amount":100}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"isValid":true,"discountAmount":20,"finalPrice":80}`,
		},
		{
			name:       "fixed discount rounds to cents",
			body:       `{"code":"FLAT","amount":33.333}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"isValid":true,"discountAmount":10,"finalPrice":23.33}`,
		},
		{
			name:       "expired is a 200 rejection",
			body:       `{"code":"OLD","amount":50}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"isValid":false,"error":"Cupón expirado","kind":"expired"}`,
		},
		{
			name:       "explicit instant before expiry",
			body:       `{"code":"OLD","amount":50,"at":"2025-06-15T10:00:00Z"}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"isValid":true,"discountAmount":5,"finalPrice":45}`,
		},
		{
			name:       "negative amount",
			body:       `{"code":"FLAT","amount":-1}`,
			wantStatus: http.StatusOK,
			wantBody:   `{"isValid":false,"error":"Monto de compra inválido","kind":"invalid_purchase_amount"}`,
		},
		{
			name:       "unknown code",
			body:       `{"code":"NOPE","amount":10}`,
			wantStatus: http.StatusNotFound,
			wantBody:   `{"code":404,"message":"coupon not found"}`,
		},
		{
			name:       "missing amount",
			body:       `{"code":"FLAT"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"code":400,"message":"amount is required"}`,
		},
		{
			name:       "bad timestamp",
			body:       `{"code":"FLAT","amount":1,"at":"yesterday"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"code":400,"message":"at must be an RFC 3339 timestamp"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t,
				activeCoupon("SAVE20", coupon.DiscountPercentage, 20),
				activeCoupon("FLAT", coupon.DiscountFixed, 10),
				expired,
			)

			rec := env.do(http.MethodPost, "/api/coupons/validate", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestValidateCoupon_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{"code":`, `[]`, `{"code":42,"amount":1}`} {
		rec := env.do(http.MethodPost, "/api/coupons/validate", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := env.do(http.MethodPost, "/api/coupons/validate", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateCoupon_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.coupons.findErr = errors.New("connection refused")

	rec := env.do(http.MethodPost, "/api/coupons/validate", `{"code":"X","amount":1}`, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestRedeemCoupon(t *testing.T) {
	limited := activeCoupon("ONCE", coupon.DiscountFixed, 5)
	limited.MaxUsageCount = ptr(1)
	env := newTestEnv(t, limited)

	rec := env.do(http.MethodPost, "/api/coupons/redeem", `{"code":"ONCE","amount":20,"reference":"order-7"}`, clientKey)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"reference":"order-7"`)
	assert.Contains(t, rec.Body.String(), `"finalPrice":15.00`)
	require.Len(t, env.redemptions.created, 1)
	assert.Equal(t, 1, env.coupons.coupons["ONCE"].CurrentUsageCount)

	rec = env.do(http.MethodPost, "/api/coupons/redeem", `{"code":"ONCE","amount":20}`, clientKey)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"isValid":false,"error":"Cupón agotado","kind":"exhausted"}`, rec.Body.String())
	assert.Len(t, env.redemptions.created, 1)
}

func TestRedeemCoupon_StoreFailureKeepsUse(t *testing.T) {
	limited := activeCoupon("ONCE", coupon.DiscountFixed, 5)
	limited.MaxUsageCount = ptr(1)
	env := newTestEnv(t, limited)
	env.redemptions.err = errors.New("numeric field overflow")

	rec := env.do(http.MethodPost, "/api/coupons/redeem", `{"code":"ONCE","amount":20}`, clientKey)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "overflow")
	assert.Equal(t, 0, env.coupons.coupons["ONCE"].CurrentUsageCount)

	env.redemptions.err = nil
	rec = env.do(http.MethodPost, "/api/coupons/redeem", `{"code":"ONCE","amount":20}`, clientKey)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.coupons.coupons["ONCE"].CurrentUsageCount)
}

func TestRedeemCoupon_Auth(t *testing.T) {
	env := newTestEnv(t, activeCoupon("A", coupon.DiscountFixed, 1))
	body := `{"code":"A","amount":5}`

	rec := env.do(http.MethodPost, "/api/coupons/redeem", body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/coupons/redeem", body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	env.keys.err = errors.New("db down")
	rec = env.do(http.MethodPost, "/api/coupons/redeem", body, clientKey)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.redemptions.created)
}

func TestAdminRoutes_RequireScope(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/admin/coupons", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/admin/coupons", "", clientKey)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/admin/coupons", "", adminKey)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminCouponLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/admin/coupons", `{
		"code": "welcome10",
		"discountType": "percentage",
		"discountValue": 10,
		"maxUsageCount": 3,
		"validUntil": null,
		"minPurchaseAmount": 25,
		"description": "Welcome offer"
	}`, adminKey)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"code":"WELCOME10"`)
	assert.Contains(t, rec.Body.String(), `"validUntil":null`)

	rec = env.do(http.MethodPost, "/api/admin/coupons", `{"code":"WELCOME10","discountType":"fixed","discountValue":1}`, adminKey)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodGet, "/api/admin/coupons/welcome10", "", adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isActive":true`)

	rec = env.do(http.MethodDelete, "/api/admin/coupons/WELCOME10", "", adminKey)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodPost, "/api/coupons/validate", `{"code":"WELCOME10","amount":50}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isValid":false,"error":"Cupón inactivo","kind":"inactive"}`, rec.Body.String())

	rec = env.do(http.MethodDelete, "/api/admin/coupons/MISSING", "", adminKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCoupon_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "percentage over 100", body: `{"code":"X","discountType":"percentage","discountValue":150}`},
		{name: "unknown type", body: `{"code":"X","discountType":"bogo","discountValue":1}`},
		{name: "missing code", body: `{"discountType":"fixed","discountValue":1}`},
		{name: "bad timestamp", body: `{"code":"X","discountType":"fixed","discountValue":1,"validFrom":"tomorrow"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(http.MethodPost, "/api/admin/coupons", tt.body, adminKey)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, env.coupons.coupons)
		})
	}
}

func TestListCoupons(t *testing.T) {
	env := newTestEnv(t,
		activeCoupon("A", coupon.DiscountFixed, 1),
		activeCoupon("B", coupon.DiscountFixed, 2),
		activeCoupon("C", coupon.DiscountFixed, 3),
	)

	rec := env.do(http.MethodGet, "/api/admin/coupons?limit=2&offset=1", "", adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"limit":2`)
	assert.Contains(t, body, `"offset":1`)
	assert.Contains(t, body, `"code":"B"`)
	assert.Contains(t, body, `"code":"C"`)
	assert.NotContains(t, body, `"code":"A"`)

	rec = env.do(http.MethodGet, "/api/admin/coupons?limit=ten", "", adminKey)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/admin/coupons?limit=500", "", adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"limit":100`)
}
