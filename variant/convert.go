package variant

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/nativebind/errors"
)

// ObjectRef is implemented by managed wrappers of native objects.
type ObjectRef interface {
	NativePtr() uint64
}

// From converts a Go value to a Variant.
func From(v any) (Variant, error) {
	switch x := v.(type) {
	case nil:
		return Variant{}, nil
	case Variant:
		return x, nil
	case bool:
		return NewBool(x), nil
	case int:
		return NewInt(int64(x)), nil
	case int8:
		return NewInt(int64(x)), nil
	case int16:
		return NewInt(int64(x)), nil
	case int32:
		return NewInt(int64(x)), nil
	case int64:
		return NewInt(x), nil
	case uint8:
		return NewInt(int64(x)), nil
	case uint16:
		return NewInt(int64(x)), nil
	case uint32:
		return NewInt(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Variant{}, errors.Overflow(errors.PhaseEncode, nil, x, "int")
		}
		return NewInt(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Variant{}, errors.Overflow(errors.PhaseEncode, nil, x, "int")
		}
		return NewInt(int64(x)), nil
	case float32:
		return NewFloat(float64(x)), nil
	case float64:
		return NewFloat(x), nil
	case string:
		return NewString(x), nil
	case []byte:
		return NewPackedBytes(x), nil
	case []int64:
		return NewPackedInt64s(x), nil
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return Variant{typ: PackedInt64s, ref: out}, nil
	case []float64:
		return NewPackedFloat64s(x), nil
	case []string:
		return NewPackedStrings(x), nil
	case []Variant:
		return NewArray(x), nil
	case []any:
		out := make([]Variant, len(x))
		for i, e := range x {
			ev, err := From(e)
			if err != nil {
				return Variant{}, withPath(err, strconv.Itoa(i))
			}
			out[i] = ev
		}
		return Variant{typ: Array, ref: out}, nil
	case ObjectRef:
		return NewObject(x.NativePtr()), nil
	}
	return Variant{}, errors.TypeMismatch(errors.PhaseEncode, nil, fmt.Sprintf("%T", v), "Variant")
}

// FromArgs converts call arguments. Errors carry the argument index in
// their path.
func FromArgs(args []any) ([]Variant, error) {
	out := make([]Variant, len(args))
	for i, a := range args {
		v, err := From(a)
		if err != nil {
			return nil, withPath(err, "arg"+strconv.Itoa(i))
		}
		out[i] = v
	}
	return out, nil
}

// To converts a Variant to T. Nil converts to the zero value of any T.
// Int converts to floating point targets when the value is exactly
// representable; every other conversion requires
// the matching tag.
func To[T any](v Variant) (T, error) {
	var out T
	if v.typ == Nil {
		return out, nil
	}
	var err error
	switch p := any(&out).(type) {
	case *Variant:
		*p = v
	case *any:
		*p = v.Interface()
	case *bool:
		*p, err = v.AsBool()
	case *int64:
		*p, err = v.AsInt()
	case *int:
		*p, err = toSigned[int](v, math.MinInt, math.MaxInt)
	case *int8:
		*p, err = toSigned[int8](v, math.MinInt8, math.MaxInt8)
	case *int16:
		*p, err = toSigned[int16](v, math.MinInt16, math.MaxInt16)
	case *int32:
		*p, err = toSigned[int32](v, math.MinInt32, math.MaxInt32)
	case *uint:
		*p, err = toUnsigned[uint](v, math.MaxUint)
	case *uint8:
		*p, err = toUnsigned[uint8](v, math.MaxUint8)
	case *uint16:
		*p, err = toUnsigned[uint16](v, math.MaxUint16)
	case *uint32:
		*p, err = toUnsigned[uint32](v, math.MaxUint32)
	case *uint64:
		if v.typ == Object {
			*p = v.bits
			break
		}
		*p, err = toUnsigned[uint64](v, math.MaxUint64)
	case *float64:
		*p, err = toFloat(v)
	case *float32:
		var f float64
		if f, err = toFloat(v); err == nil {
			*p, err = toFloat32(f)
		}
	case *string:
		*p, err = v.AsString()
	case *[]byte:
		*p, err = v.AsPackedBytes()
	case *[]int64:
		*p, err = v.AsPackedInt64s()
	case *[]int:
		var s []int64
		if s, err = v.AsPackedInt64s(); err == nil {
			*p = make([]int, len(s))
			for i, n := range s {
				(*p)[i] = int(n)
			}
		}
	case *[]float64:
		*p, err = v.AsPackedFloat64s()
	case *[]string:
		*p, err = v.AsPackedStrings()
	case *[]Variant:
		*p, err = v.AsArray()
	case *[]any:
		var elems []Variant
		if elems, err = v.AsArray(); err == nil {
			*p = make([]any, len(elems))
			for i, e := range elems {
				(*p)[i] = e.Interface()
			}
		}
	default:
		err = errors.TypeMismatch(errors.PhaseDecode, nil, fmt.Sprintf("%T", out), v.typ.String())
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Coerce converts v to t when the conversion is exact: int to float, and
// float to int for integral values that fit. Nil and values already of
// type t pass through.
func Coerce(v Variant, t Type) (Variant, error) {
	if v.typ == t || v.typ == Nil {
		return v, nil
	}
	switch {
	case v.typ == Int && t == Float:
		f, err := intToFloat(int64(v.bits), errors.PhaseEncode)
		if err != nil {
			return Variant{}, err
		}
		return NewFloat(f), nil
	case v.typ == Float && t == Int:
		f := math.Float64frombits(v.bits)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return Variant{}, errors.Overflow(errors.PhaseEncode, nil, f, "int")
		}
		return NewInt(int64(f)), nil
	case v.typ == PackedInt64s && t == PackedFloat64s:
		src := v.ref.([]int64)
		out := make([]float64, len(src))
		for i, n := range src {
			f, err := intToFloat(n, errors.PhaseEncode)
			if err != nil {
				return Variant{}, withPath(err, "["+strconv.Itoa(i)+"]")
			}
			out[i] = f
		}
		return Variant{typ: PackedFloat64s, ref: out}, nil
	}
	return Variant{}, errors.TypeMismatch(errors.PhaseEncode, nil, v.typ.String(), t.String())
}

type signed interface{ ~int | ~int8 | ~int16 | ~int32 }

type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func toSigned[T signed](v Variant, lo, hi int64) (T, error) {
	i, err := v.AsInt()
	if err != nil {
		return 0, err
	}
	if i < lo || i > hi {
		return 0, errors.Overflow(errors.PhaseDecode, nil, i, fmt.Sprintf("%T", T(0)))
	}
	return T(i), nil
}

func toUnsigned[T unsigned](v Variant, hi uint64) (T, error) {
	i, err := v.AsInt()
	if err != nil {
		return 0, err
	}
	if i < 0 || uint64(i) > hi {
		return 0, errors.Overflow(errors.PhaseDecode, nil, i, fmt.Sprintf("%T", T(0)))
	}
	return T(i), nil
}

func toFloat(v Variant) (float64, error) {
	if v.typ == Int {
		return intToFloat(int64(v.bits), errors.PhaseDecode)
	}
	return v.AsFloat()
}

// intToFloat converts n only if float64 represents it exactly.
func intToFloat(n int64, phase errors.Phase) (float64, error) {
	f := float64(n)
	if f >= 0x1p63 || int64(f) != n {
		return 0, errors.Overflow(phase, nil, n, "float")
	}
	return f, nil
}

// toFloat32 narrows finite values only when no precision is lost.
func toFloat32(f float64) (float32, error) {
	n := float32(f)
	if !math.IsNaN(f) && !math.IsInf(f, 0) && float64(n) != f {
		return 0, errors.Overflow(errors.PhaseDecode, nil, f, "float32")
	}
	return n, nil
}

// withPath prefixes the path of a structured error.
func withPath(err error, elem string) error {
	if e, ok := err.(*errors.Error); ok {
		e.Path = append([]string{elem}, e.Path...)
		return e
	}
	return err
}
