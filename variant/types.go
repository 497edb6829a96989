package variant

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/nativebind/errors"
)

// Type is the tag of a Variant. Values are part of the native cell layout.
type Type uint32

const (
	Nil Type = iota
	Bool
	Int
	Float
	String
	Object
	Array
	PackedBytes
	PackedInt64s
	PackedFloat64s
	PackedStrings

	typeCount
)

var typeNames = [typeCount]string{
	Nil:            "nil",
	Bool:           "bool",
	Int:            "int",
	Float:          "float",
	String:         "String",
	Object:         "Object",
	Array:          "Array",
	PackedBytes:    "PackedByteArray",
	PackedInt64s:   "PackedInt64Array",
	PackedFloat64s: "PackedFloat64Array",
	PackedStrings:  "PackedStringArray",
}

// String returns the API description name of the type.
func (t Type) String() string {
	if t < typeCount {
		return typeNames[t]
	}
	return "invalid"
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t < typeCount
}

// IsScalar reports whether the type keeps its value in the cell payload.
func (t Type) IsScalar() bool {
	switch t {
	case Nil, Bool, Int, Float, Object:
		return true
	}
	return false
}

// ParseType converts an API description type name to a Type.
func ParseType(name string) (Type, error) {
	switch name {
	case "", "nil", "void":
		return Nil, nil
	case "bool":
		return Bool, nil
	case "int":
		return Int, nil
	case "float":
		return Float, nil
	case "String", "string", "StringName":
		return String, nil
	case "Object", "object":
		return Object, nil
	case "Array":
		return Array, nil
	case "PackedByteArray":
		return PackedBytes, nil
	case "PackedInt64Array":
		return PackedInt64s, nil
	case "PackedFloat64Array":
		return PackedFloat64s, nil
	case "PackedStringArray":
		return PackedStrings, nil
	}
	return Nil, errors.NotFound(errors.PhaseLoad, "type", name)
}

// WIT returns the WIT type with the same value space. Nil and Array have no
// single WIT equivalent and report false.
func (t Type) WIT() (wit.Type, bool) {
	switch t {
	case Bool:
		return wit.Bool{}, true
	case Int:
		return wit.S64{}, true
	case Float:
		return wit.F64{}, true
	case String:
		return wit.String{}, true
	case Object:
		return wit.U64{}, true
	case PackedBytes:
		return &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}, true
	case PackedInt64s:
		return &wit.TypeDef{Kind: &wit.List{Type: wit.S64{}}}, true
	case PackedFloat64s:
		return &wit.TypeDef{Kind: &wit.List{Type: wit.F64{}}}, true
	case PackedStrings:
		return &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}, true
	}
	return nil, false
}
