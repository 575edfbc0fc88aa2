package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/pkg/httpmiddleware"
)

// HeaderAPIKey carries the caller's raw API key.
const HeaderAPIKey = "X-API-Key"

// Authenticator checks API keys against their stored HMAC-SHA256 hashes.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Authenticate resolves the raw key to its stored record.
func (a *Authenticator) Authenticate(r *http.Request) (*auth.APIKeyInfo, error) {
	raw := r.Header.Get(HeaderAPIKey)
	if raw == "" {
		return nil, auth.ErrKeyNotFound
	}
	hexHash := auth.HashKey(a.pepper, raw)

	info, err := a.apikeys.FindByHash(r.Context(), hexHash)
	if err != nil {
		return nil, err
	}

	// FindByHash matched already; re-check the stored hash in constant time.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, auth.ErrKeyNotFound
	}
	computed, _ := hex.DecodeString(hexHash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, auth.ErrKeyNotFound
	}
	return info, nil
}

// Require rejects requests without a valid key (401) or, when scope is not
// empty, without that scope (403).
func (a *Authenticator) Require(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := a.Authenticate(r)
			switch {
			case errors.Is(err, auth.ErrKeyNotFound):
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			case err != nil:
				zctx.From(r.Context()).Error("API key lookup failed", zap.Error(err))
				httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if scope != "" && !info.HasScope(scope) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
		})
	}
}
