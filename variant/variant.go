package variant

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/nativebind/errors"
)

// Variant is an immutable tagged value. The zero Variant is Nil.
type Variant struct {
	ref  any
	bits uint64
	typ  Type
}

func NewBool(b bool) Variant {
	if b {
		return Variant{typ: Bool, bits: 1}
	}
	return Variant{typ: Bool}
}

func NewInt(i int64) Variant {
	return Variant{typ: Int, bits: uint64(i)}
}

func NewFloat(f float64) Variant {
	return Variant{typ: Float, bits: math.Float64bits(f)}
}

func NewString(s string) Variant {
	return Variant{typ: String, ref: s}
}

// NewObject wraps a native object pointer. Pointer 0 is the null object.
func NewObject(ptr uint64) Variant {
	return Variant{typ: Object, bits: ptr}
}

// NewArray copies elems.
func NewArray(elems []Variant) Variant {
	return Variant{typ: Array, ref: append([]Variant(nil), elems...)}
}

func NewPackedBytes(b []byte) Variant {
	return Variant{typ: PackedBytes, ref: append([]byte(nil), b...)}
}

func NewPackedInt64s(v []int64) Variant {
	return Variant{typ: PackedInt64s, ref: append([]int64(nil), v...)}
}

func NewPackedFloat64s(v []float64) Variant {
	return Variant{typ: PackedFloat64s, ref: append([]float64(nil), v...)}
}

func NewPackedStrings(v []string) Variant {
	return Variant{typ: PackedStrings, ref: append([]string(nil), v...)}
}

func (v Variant) Type() Type { return v.typ }

func (v Variant) IsNil() bool { return v.typ == Nil }

// Len returns the element count of strings and sequences, 0 otherwise.
func (v Variant) Len() int {
	switch r := v.ref.(type) {
	case string:
		return len(r)
	case []Variant:
		return len(r)
	case []byte:
		return len(r)
	case []int64:
		return len(r)
	case []float64:
		return len(r)
	case []string:
		return len(r)
	}
	return 0
}

func (v Variant) mismatch(goType string) error {
	return errors.TypeMismatch(errors.PhaseDecode, nil, goType, v.typ.String())
}

func (v Variant) AsBool() (bool, error) {
	if v.typ != Bool {
		return false, v.mismatch("bool")
	}
	return v.bits != 0, nil
}

func (v Variant) AsInt() (int64, error) {
	if v.typ != Int {
		return 0, v.mismatch("int64")
	}
	return int64(v.bits), nil
}

func (v Variant) AsFloat() (float64, error) {
	if v.typ != Float {
		return 0, v.mismatch("float64")
	}
	return math.Float64frombits(v.bits), nil
}

func (v Variant) AsString() (string, error) {
	if v.typ != String {
		return "", v.mismatch("string")
	}
	return v.ref.(string), nil
}

// AsObject returns the native pointer of an Object variant.
func (v Variant) AsObject() (uint64, error) {
	if v.typ != Object {
		return 0, v.mismatch("object")
	}
	return v.bits, nil
}

func (v Variant) AsArray() ([]Variant, error) {
	if v.typ != Array {
		return nil, v.mismatch("[]Variant")
	}
	return append([]Variant(nil), v.ref.([]Variant)...), nil
}

func (v Variant) AsPackedBytes() ([]byte, error) {
	if v.typ != PackedBytes {
		return nil, v.mismatch("[]byte")
	}
	return append([]byte(nil), v.ref.([]byte)...), nil
}

func (v Variant) AsPackedInt64s() ([]int64, error) {
	if v.typ != PackedInt64s {
		return nil, v.mismatch("[]int64")
	}
	return append([]int64(nil), v.ref.([]int64)...), nil
}

func (v Variant) AsPackedFloat64s() ([]float64, error) {
	if v.typ != PackedFloat64s {
		return nil, v.mismatch("[]float64")
	}
	return append([]float64(nil), v.ref.([]float64)...), nil
}

func (v Variant) AsPackedStrings() ([]string, error) {
	if v.typ != PackedStrings {
		return nil, v.mismatch("[]string")
	}
	return append([]string(nil), v.ref.([]string)...), nil
}

// Interface returns the natural Go value: nil, bool, int64, float64, string,
// uint64 for objects, []any for arrays and the slice type of packed arrays.
func (v Variant) Interface() any {
	switch v.typ {
	case Bool:
		return v.bits != 0
	case Int:
		return int64(v.bits)
	case Float:
		return math.Float64frombits(v.bits)
	case String:
		return v.ref.(string)
	case Object:
		return v.bits
	case Array:
		elems := v.ref.([]Variant)
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = e.Interface()
		}
		return out
	case PackedBytes:
		b, _ := v.AsPackedBytes()
		return b
	case PackedInt64s:
		s, _ := v.AsPackedInt64s()
		return s
	case PackedFloat64s:
		s, _ := v.AsPackedFloat64s()
		return s
	case PackedStrings:
		s, _ := v.AsPackedStrings()
		return s
	}
	return nil
}

// Equal compares type and value deeply. Floats compare by bits, so NaN
// equals an identical NaN.
func (v Variant) Equal(o Variant) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Nil:
		return true
	case Bool, Int, Float, Object:
		return v.bits == o.bits
	case String:
		return v.ref.(string) == o.ref.(string)
	case Array:
		a, b := v.ref.([]Variant), o.ref.([]Variant)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case PackedBytes:
		return bytes.Equal(v.ref.([]byte), o.ref.([]byte))
	case PackedInt64s:
		a, b := v.ref.([]int64), o.ref.([]int64)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	case PackedFloat64s:
		a, b := v.ref.([]float64), o.ref.([]float64)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
				return false
			}
		}
		return true
	case PackedStrings:
		a, b := v.ref.([]string), o.ref.([]string)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	return false
}

func (v Variant) String() string {
	switch v.typ {
	case Nil:
		return "nil"
	case Bool:
		return strconv.FormatBool(v.bits != 0)
	case Int:
		return strconv.FormatInt(int64(v.bits), 10)
	case Float:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case String:
		return strconv.Quote(v.ref.(string))
	case Object:
		return fmt.Sprintf("Object(0x%x)", v.bits)
	case Array:
		elems := v.ref.([]Variant)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case PackedBytes, PackedInt64s, PackedFloat64s:
		return fmt.Sprintf("%s%v", v.typ, v.ref)
	case PackedStrings:
		return fmt.Sprintf("%s%q", v.typ, v.ref)
	}
	return "invalid"
}
