// Package handler exposes the coupon engine over HTTP.
package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/redemption"
	"github.com/xenking/coupon-engine/internal/wire"
	"github.com/xenking/coupon-engine/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// Handler serves the public coupon endpoints and the admin API.
type Handler struct {
	redemptions *redemption.Service
	admin       *coupon.Admin
	auth        *Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(redemptions *redemption.Service, admin *coupon.Admin, auth *Authenticator) *Handler {
	return &Handler{redemptions: redemptions, admin: admin, auth: auth}
}

// Routes registers every API route on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/coupons/validate", h.ValidateCoupon)
		r.With(h.auth.Require("")).Post("/coupons/redeem", h.RedeemCoupon)

		r.Route("/admin/coupons", func(r chi.Router) {
			r.Use(h.auth.Require(auth.ScopeAdmin))
			r.Post("/", h.CreateCoupon)
			r.Get("/", h.ListCoupons)
			r.Get("/{code}", h.GetCoupon)
			r.Delete("/{code}", h.DeactivateCoupon)
		})
	})
}

// badRequestError marks request decoding failures.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: errors.Errorf(format, args...).Error()}
}

// decodeBody reads the request body as a JSON object and calls field for
// every key.
func decodeBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(body) == 0 {
		return badRequest("request body is required")
	}
	if err := jx.DecodeBytes(body).Obj(field); err != nil {
		var bre *badRequestError
		if errors.As(err, &bre) {
			return bre
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError maps domain errors to HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bre     *badRequestError
		invalid *coupon.InvalidCouponError
		rejErr  *redemption.RejectedError
	)
	switch {
	case errors.As(err, &bre):
		httpmiddleware.WriteError(w, http.StatusBadRequest, bre.msg)
	case errors.As(err, &invalid):
		httpmiddleware.WriteError(w, http.StatusBadRequest, invalid.Error())
	case errors.As(err, &rejErr):
		writeJSON(w, http.StatusUnprocessableEntity, func(e *jx.Encoder) {
			wire.EncodeResult(e, rejErr.Rejected)
		})
	case errors.Is(err, coupon.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "coupon not found")
	case errors.Is(err, coupon.ErrDuplicateCode):
		httpmiddleware.WriteError(w, http.StatusConflict, "coupon code already exists")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
