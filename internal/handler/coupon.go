package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/domain/redemption"
	"github.com/xenking/coupon-engine/internal/wire"
)

// ValidateCoupon handles POST /api/coupons/validate. Engine rejections are
// a normal 200 response with isValid false.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		req       redemption.QuoteRequest
		hasAmount bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "amount":
			req.Amount, err = d.Float64()
			hasAmount = true
		case "at":
			var s string
			if s, err = d.Str(); err != nil {
				return err
			}
			at, perr := time.Parse(time.RFC3339, s)
			if perr != nil {
				return badRequest("at must be an RFC 3339 timestamp")
			}
			req.At = &at
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = requireCodeAndAmount(req.Code, hasAmount)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.redemptions.Quote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeResult(e, q.Result)
	})
}

// RedeemCoupon handles POST /api/coupons/redeem.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		req       redemption.RedeemRequest
		hasAmount bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "amount":
			req.Amount, err = d.Float64()
			hasAmount = true
		case "reference":
			req.Reference, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = requireCodeAndAmount(req.Code, hasAmount)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	rd, err := h.redemptions.Redeem(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		wire.EncodeRedemption(e, rd)
	})
}

func requireCodeAndAmount(code string, hasAmount bool) error {
	if code == "" {
		return badRequest("code is required")
	}
	if !hasAmount {
		return badRequest("amount is required")
	}
	return nil
}
