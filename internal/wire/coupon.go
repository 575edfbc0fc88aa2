package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// EncodeCoupon writes c as a JSON object. Absent optional fields are null.
func EncodeCoupon(e *jx.Encoder, c *coupon.Coupon) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discountType")
	e.Str(string(c.DiscountType))
	e.FieldStart("discountValue")
	e.Float64(c.DiscountValue)
	e.FieldStart("maxUsageCount")
	if c.MaxUsageCount != nil {
		e.Int(*c.MaxUsageCount)
	} else {
		e.Null()
	}
	e.FieldStart("currentUsageCount")
	e.Int(c.CurrentUsageCount)
	e.FieldStart("validFrom")
	encodeTime(e, c.ValidFrom)
	e.FieldStart("validUntil")
	if c.ValidUntil != nil {
		encodeTime(e, *c.ValidUntil)
	} else {
		e.Null()
	}
	e.FieldStart("isActive")
	e.Bool(c.IsActive)
	e.FieldStart("minPurchaseAmount")
	if c.MinPurchaseAmount != nil {
		e.Float64(*c.MinPurchaseAmount)
	} else {
		e.Null()
	}
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("createdAt")
	encodeTime(e, c.CreatedAt)
	e.ObjEnd()
}

// MarshalCoupon returns the JSON encoding of c.
func MarshalCoupon(c *coupon.Coupon) []byte {
	var e jx.Encoder
	EncodeCoupon(&e, c)
	return e.Bytes()
}

// DecodeCoupon reads a coupon object. Unknown fields are skipped; missing
// fields keep their zero value.
func DecodeCoupon(d *jx.Decoder) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			c.ID = v
			return err
		case "code":
			v, err := d.Str()
			c.Code = v
			return err
		case "discountType":
			v, err := d.Str()
			c.DiscountType = coupon.DiscountType(v)
			return err
		case "discountValue":
			v, err := d.Float64()
			c.DiscountValue = v
			return err
		case "maxUsageCount":
			if null, err := isNull(d); null || err != nil {
				return err
			}
			v, err := d.Int()
			if err != nil {
				return err
			}
			c.MaxUsageCount = &v
		case "currentUsageCount":
			v, err := d.Int()
			c.CurrentUsageCount = v
			return err
		case "validFrom":
			v, err := decodeTime(d)
			c.ValidFrom = v
			return err
		case "validUntil":
			if null, err := isNull(d); null || err != nil {
				return err
			}
			v, err := decodeTime(d)
			if err != nil {
				return err
			}
			c.ValidUntil = &v
		case "isActive":
			v, err := d.Bool()
			c.IsActive = v
			return err
		case "minPurchaseAmount":
			if null, err := isNull(d); null || err != nil {
				return err
			}
			v, err := d.Float64()
			if err != nil {
				return err
			}
			c.MinPurchaseAmount = &v
		case "description":
			v, err := d.Str()
			c.Description = v
			return err
		case "createdAt":
			v, err := decodeTime(d)
			c.CreatedAt = v
			return err
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode coupon")
	}
	return &c, nil
}

// UnmarshalCoupon decodes a coupon from data.
func UnmarshalCoupon(data []byte) (*coupon.Coupon, error) {
	return DecodeCoupon(jx.DecodeBytes(data))
}
