// Package value defines the tagged scalar/collection value produced by
// column readers and staged in the scratch and output batches.
package value

import "github.com/hexlake/pqscan/encoding/plain"

// Kind discriminates which field of Value holds the payload.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindInt96
	KindBytes // BYTE_ARRAY, FIXED_LEN_BYTE_ARRAY, and decimal raw bytes
	KindList  // a materialized collection: Items holds its elements
	KindStruct
)

// Value is a small tagged union big enough to hold any leaf physical type,
// plus the two container kinds collection readers synthesize.
type Value struct {
	Kind    Kind
	Bool    bool
	Int32   int32
	Int64   int64
	Float32 float32
	Float64 float64
	Int96   plain.Int96
	Bytes   []byte
	Items   []Value
}

func Null() Value                    { return Value{Kind: KindNull} }
func Of(b bool) Value                { return Value{Kind: KindBool, Bool: b} }
func OfInt32(v int32) Value          { return Value{Kind: KindInt32, Int32: v} }
func OfInt64(v int64) Value          { return Value{Kind: KindInt64, Int64: v} }
func OfFloat32(v float32) Value      { return Value{Kind: KindFloat32, Float32: v} }
func OfFloat64(v float64) Value      { return Value{Kind: KindFloat64, Float64: v} }
func OfInt96(v plain.Int96) Value    { return Value{Kind: KindInt96, Int96: v} }
func OfBytes(v []byte) Value         { return Value{Kind: KindBytes, Bytes: v} }
func OfList(items []Value) Value     { return Value{Kind: KindList, Items: items} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Slot is one column's materialized output for one row of the scratch or
// output batch: a null indicator plus the value, kept separate so
// null-but-present struct fields are representable without a sentinel
// Value.
type Slot struct {
	Null  bool
	Value Value
}

func NullSlot() Slot { return Slot{Null: true} }
func ValueSlot(v Value) Slot { return Slot{Value: v} }
