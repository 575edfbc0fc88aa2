package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind classifies why a coupon was rejected. Kinds are listed in the order
// the validator checks them.
type Kind string

const (
	KindInvalidDiscountValue  Kind = "invalid_discount_value"
	KindInvalidPercentage     Kind = "invalid_percentage"
	KindInvalidPurchaseAmount Kind = "invalid_purchase_amount"
	KindInactive              Kind = "inactive"
	KindExhausted             Kind = "exhausted"
	KindNotYetValid           Kind = "not_yet_valid"
	KindExpired               Kind = "expired"
	KindBelowMinimumPurchase  Kind = "below_minimum_purchase"
)

// Sentinel errors matching each Kind, for callers that prefer errors.Is.
var (
	ErrInvalidDiscountValue  = errors.New("Valor de descuento inválido")
	ErrInvalidPercentage     = errors.New("Porcentaje inválido: debe estar entre 0 y 100")
	ErrInvalidPurchaseAmount = errors.New("Monto de compra inválido")
	ErrInactive              = errors.New("Cupón inactivo")
	ErrExhausted             = errors.New("Cupón agotado")
	ErrNotYetValid           = errors.New("Cupón aún no válido")
	ErrExpired               = errors.New("Cupón expirado")
	ErrBelowMinimumPurchase  = errors.New("Compra mínima requerida")
)

var kindErrors = map[Kind]error{
	KindInvalidDiscountValue:  ErrInvalidDiscountValue,
	KindInvalidPercentage:     ErrInvalidPercentage,
	KindInvalidPurchaseAmount: ErrInvalidPurchaseAmount,
	KindInactive:              ErrInactive,
	KindExhausted:             ErrExhausted,
	KindNotYetValid:           ErrNotYetValid,
	KindExpired:               ErrExpired,
	KindBelowMinimumPurchase:  ErrBelowMinimumPurchase,
}

// Result is the outcome of a validation: either Applied or Rejected.
// The interface is sealed so a result can never carry both a discount and
// an error.
type Result interface {
	IsValid() bool
	result()
}

// Applied is a successful validation with the computed prices, both
// rounded to cents.
type Applied struct {
	Discount   decimal.Decimal
	FinalPrice decimal.Decimal
}

// IsValid always reports true.
func (Applied) IsValid() bool { return true }
func (Applied) result()       {}

// Rejected is a failed validation with a human-readable message.
type Rejected struct {
	Kind    Kind
	Message string
}

// IsValid always reports false.
func (Rejected) IsValid() bool { return false }
func (Rejected) result()       {}

// Err returns an error carrying the rejection message that matches the
// Kind's sentinel with errors.Is.
func (r Rejected) Err() error {
	sentinel, ok := kindErrors[r.Kind]
	if !ok {
		return errors.New(r.Message)
	}
	if r.Message == sentinel.Error() {
		return sentinel
	}
	return &rejectionError{msg: r.Message, sentinel: sentinel}
}

type rejectionError struct {
	msg      string
	sentinel error
}

func (e *rejectionError) Error() string { return e.msg }
func (e *rejectionError) Unwrap() error { return e.sentinel }

func reject(kind Kind) Rejected {
	return Rejected{Kind: kind, Message: kindErrors[kind].Error()}
}
