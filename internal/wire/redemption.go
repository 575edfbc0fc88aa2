package wire

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/redemption"
)

// EncodeRedemption writes r as a JSON object with two-decimal money fields.
func EncodeRedemption(e *jx.Encoder, r *redemption.Redemption) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("couponId")
	e.Str(r.CouponID)
	e.FieldStart("code")
	e.Str(r.Code)
	e.FieldStart("purchaseAmount")
	encodeMoney(e, r.PurchaseAmount)
	e.FieldStart("discount")
	encodeMoney(e, r.Discount)
	e.FieldStart("finalPrice")
	encodeMoney(e, r.FinalPrice)
	e.FieldStart("reference")
	e.Str(r.Reference)
	e.FieldStart("redeemedAt")
	encodeTime(e, r.RedeemedAt)
	e.ObjEnd()
}

// MarshalRedemption returns the JSON encoding of r.
func MarshalRedemption(r *redemption.Redemption) []byte {
	var e jx.Encoder
	EncodeRedemption(&e, r)
	return e.Bytes()
}

// UnmarshalRedemption decodes a redemption from data.
func UnmarshalRedemption(data []byte) (*redemption.Redemption, error) {
	var r redemption.Redemption
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			r.ID, err = d.Str()
		case "couponId":
			r.CouponID, err = d.Str()
		case "code":
			r.Code, err = d.Str()
		case "purchaseAmount":
			r.PurchaseAmount, err = decodeMoney(d)
		case "discount":
			r.Discount, err = decodeMoney(d)
		case "finalPrice":
			r.FinalPrice, err = decodeMoney(d)
		case "reference":
			r.Reference, err = d.Str()
		case "redeemedAt":
			r.RedeemedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode redemption")
	}
	return &r, nil
}

// EncodeResult writes a validation outcome:
//
//	{"isValid":true,"discountAmount":20.00,"finalPrice":80.00}
//	{"isValid":false,"error":"Cupón expirado","kind":"expired"}
func EncodeResult(e *jx.Encoder, res coupon.Result) {
	e.ObjStart()
	e.FieldStart("isValid")
	e.Bool(res.IsValid())
	switch r := res.(type) {
	case coupon.Applied:
		e.FieldStart("discountAmount")
		encodeMoney(e, r.Discount)
		e.FieldStart("finalPrice")
		encodeMoney(e, r.FinalPrice)
	case coupon.Rejected:
		e.FieldStart("error")
		e.Str(r.Message)
		e.FieldStart("kind")
		e.Str(string(r.Kind))
	}
	e.ObjEnd()
}
