package evcodec

import (
	"fmt"
	"math/big"
)

// PrimitiveKind discriminates the payload carried by a Primitive.
type PrimitiveKind int8

const (
	KindNull PrimitiveKind = iota
	KindUndefined
	KindBool
	KindInt    // fits in int64
	KindUint   // fits in uint64 (also used to carry Tag/Simple numbers)
	KindBigInt // arbitrary precision integer
	KindFloat  // binary64
	KindDecimal
	KindString // complete, short-form string
)

// Decimal is an arbitrary-precision decimal: mantissa * 10^exponent.
// It mirrors CBOR tag 4's [exponent, mantissa] pair without committing to
// binary64 rounding.
type Decimal struct {
	Mantissa *big.Int
	Exponent int
}

func (d Decimal) String() string {
	if d.Mantissa == nil {
		return "0"
	}
	return fmt.Sprintf("%se%d", d.Mantissa.String(), d.Exponent)
}

// Primitive is a complete scalar value as carried by an EventPrimitive
// event, or the numeric payload of an EventTag/EventSimple event.
type Primitive struct {
	Kind    PrimitiveKind
	Bool    bool
	Int     int64
	Uint    uint64
	BigInt  *big.Int
	Float   float64
	Decimal Decimal
	Str     string
}

func Null() Primitive      { return Primitive{Kind: KindNull} }
func Undefined() Primitive { return Primitive{Kind: KindUndefined} }
func Bool(b bool) Primitive {
	return Primitive{Kind: KindBool, Bool: b}
}
func Int(v int64) Primitive   { return Primitive{Kind: KindInt, Int: v} }
func Uint(v uint64) Primitive { return Primitive{Kind: KindUint, Uint: v} }
func BigInt(v *big.Int) Primitive {
	if v.IsInt64() {
		return Int(v.Int64())
	}
	return Primitive{Kind: KindBigInt, BigInt: v}
}
func Float(v float64) Primitive { return Primitive{Kind: KindFloat, Float: v} }
func DecimalValue(mantissa *big.Int, exponent int) Primitive {
	return Primitive{Kind: KindDecimal, Decimal: Decimal{Mantissa: mantissa, Exponent: exponent}}
}
func String(s string) Primitive { return Primitive{Kind: KindString, Str: s} }

func (p Primitive) String() string {
	switch p.Kind {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBool:
		if p.Bool {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", p.Int)
	case KindUint:
		return fmt.Sprintf("%d", p.Uint)
	case KindBigInt:
		return p.BigInt.String()
	case KindFloat:
		return fmt.Sprintf("%g", p.Float)
	case KindDecimal:
		return p.Decimal.String()
	case KindString:
		return p.Str
	}
	return "<invalid>"
}

// IsNumeric reports whether the Primitive is one of the numeric kinds.
func (p Primitive) IsNumeric() bool {
	switch p.Kind {
	case KindInt, KindUint, KindBigInt, KindFloat, KindDecimal:
		return true
	}
	return false
}
