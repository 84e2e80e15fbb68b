// Package docval is the minimal concrete document tree that a Builder
// reconstructs from an event stream and an Emitter walks back into one.
// It plays the role a YAML decoder's Node type plays, reshaped to this
// codec's value kinds instead of YAML's scalar/sequence/mapping/alias/
// document kinds.
package docval

import (
	"fmt"
	"math/big"

	ev "github.com/faceless2/evcodec"
)

// Kind discriminates the shape of a Value.
type Kind int8

const (
	KindNull Kind = iota
	KindUndefined
	KindBool
	KindInt
	KindUint
	KindBigInt
	KindFloat
	KindDecimal
	KindString
	KindBuffer
	KindList
	KindMap
	KindSimple // a CBOR simple value outside the recognized null/bool set
)

// Value is one node of a materialized document tree. Exactly one of the
// scalar fields, Buffer, List or Map is meaningful, selected by Kind. Tag
// carries a CBOR/Msgpack tag number attached to this value, if any; a
// Value with no tag has Tag == nil.
type Value struct {
	Kind Kind
	Tag  *uint64

	Bool    bool
	Int     int64
	Uint    uint64
	BigInt  *big.Int
	Float   float64
	Decimal ev.Decimal
	Str     string
	Buffer  []byte

	List []*Value
	Map  []MapEntry // insertion order preserved; see Get for lookup
}

// MapEntry is one key/value pair of a Map-kind Value. Keys are always
// plain strings, even though the wire formats only require CBOR/Msgpack
// keys to be arbitrary values.
type MapEntry struct {
	Key   string
	Value *Value
}

func Null() *Value      { return &Value{Kind: KindNull} }
func Undefined() *Value { return &Value{Kind: KindUndefined} }
func Bool(b bool) *Value {
	return &Value{Kind: KindBool, Bool: b}
}
func Int(v int64) *Value   { return &Value{Kind: KindInt, Int: v} }
func Uint(v uint64) *Value { return &Value{Kind: KindUint, Uint: v} }
func BigInt(v *big.Int) *Value {
	return &Value{Kind: KindBigInt, BigInt: v}
}
func Float(v float64) *Value { return &Value{Kind: KindFloat, Float: v} }
func DecimalValue(d ev.Decimal) *Value {
	return &Value{Kind: KindDecimal, Decimal: d}
}
func String(s string) *Value { return &Value{Kind: KindString, Str: s} }
func Buffer(b []byte) *Value { return &Value{Kind: KindBuffer, Buffer: b} }
func List(items ...*Value) *Value {
	return &Value{Kind: KindList, List: items}
}
func Map(entries ...MapEntry) *Value {
	return &Value{Kind: KindMap, Map: entries}
}
func Simple(n uint8) *Value { return &Value{Kind: KindSimple, Uint: uint64(n)} }

// WithTag returns v with Tag set to n, for fluent construction in tests.
func (v *Value) WithTag(n uint64) *Value {
	v.Tag = &n
	return v
}

// Get returns the value associated with key in a Map-kind Value, or nil
// if absent or v is not a map. Lookup is linear over a slice-of-pairs
// representation rather than a Go map, so insertion order and
// duplicate-key diagnostics survive round-tripping.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindMap {
		return nil
	}
	for _, e := range v.Map {
		if e.Key == key {
			return e.Value
		}
	}
	return nil
}

// Primitive converts a scalar-kind Value to an evcodec.Primitive. It
// panics if v is a List or Map; callers are expected to check Kind first.
func (v *Value) Primitive() ev.Primitive {
	switch v.Kind {
	case KindNull:
		return ev.Null()
	case KindUndefined:
		return ev.Undefined()
	case KindBool:
		return ev.Bool(v.Bool)
	case KindInt:
		return ev.Int(v.Int)
	case KindUint:
		return ev.Uint(v.Uint)
	case KindBigInt:
		return ev.BigInt(v.BigInt)
	case KindFloat:
		return ev.Float(v.Float)
	case KindDecimal:
		return ev.DecimalValue(v.Decimal.Mantissa, v.Decimal.Exponent)
	case KindString:
		return ev.String(v.Str)
	}
	panic(fmt.Sprintf("docval: %v is not a scalar value", v.Kind))
}

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindBigInt:
		return "bigint"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindBuffer:
		return "buffer"
	case KindSimple:
		return "simple"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}
