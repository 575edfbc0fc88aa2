package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/wire"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateCoupon handles POST /api/admin/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupon.CreateRequest
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "discountType":
			var s string
			s, err = d.Str()
			req.DiscountType = coupon.DiscountType(s)
		case "discountValue":
			req.DiscountValue, err = d.Float64()
		case "maxUsageCount":
			req.MaxUsageCount, err = optional(d, (*jx.Decoder).Int)
		case "validFrom":
			req.ValidFrom, err = optional(d, decodeTimestamp)
		case "validUntil":
			req.ValidUntil, err = optional(d, decodeTimestamp)
		case "minPurchaseAmount":
			req.MinPurchaseAmount, err = optional(d, (*jx.Decoder).Float64)
		case "description":
			req.Description, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.admin.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		wire.EncodeCoupon(e, c)
	})
}

// ListCoupons handles GET /api/admin/coupons?limit=&offset=.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	coupons, err := h.admin.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("coupons")
		e.ArrStart()
		for i := range coupons {
			wire.EncodeCoupon(e, &coupons[i])
		}
		e.ArrEnd()
		e.FieldStart("limit")
		e.Int(min(max(limit, 1), maxPageSize))
		e.FieldStart("offset")
		e.Int(max(offset, 0))
		e.ObjEnd()
	})
}

// GetCoupon handles GET /api/admin/coupons/{code}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.admin.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeCoupon(e, c)
	})
}

// DeactivateCoupon handles DELETE /api/admin/coupons/{code}. The record is
// kept so later validations report it as inactive.
func (h *Handler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Deactivate(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// optional decodes a nullable field.
func optional[T any](d *jx.Decoder, decode func(*jx.Decoder) (T, error)) (*T, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := decode(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeTimestamp(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, badRequest("timestamps must be RFC 3339")
	}
	return t, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("%s must be an integer", name)
	}
	return v, nil
}
