package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/runtime"
	"github.com/wippyai/nativebind/variant"
)

// typeStr renders an argument type the way WIT spells it. Objects show
// their class.
func typeStr(a classdb.Arg) string {
	if a.Type == variant.Object {
		return a.TypeName()
	}
	t, ok := a.Type.WIT()
	if !ok {
		return strings.ToLower(a.Type.String())
	}
	return witTypeStr(t)
}

func witTypeStr(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		if l, ok := v.Kind.(*wit.List); ok {
			return "list<" + witTypeStr(l.Type) + ">"
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func formatArgs(args []classdb.Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		parts[i] = name + ": " + typeStr(a)
	}
	return strings.Join(parts, ", ")
}

func formatMethod(m *classdb.Method) string {
	s := m.Name + "(" + formatArgs(m.Args) + ")"
	if m.Return.Type != variant.Nil {
		s += " -> " + typeStr(m.Return)
	}
	return s
}

// parseArg converts command line text to a value of the declared type.
func parseArg(value string, a classdb.Arg) (any, error) {
	value = strings.TrimSpace(value)
	switch a.Type {
	case variant.Bool:
		return strconv.ParseBool(value)
	case variant.Int:
		return strconv.ParseInt(value, 0, 64)
	case variant.Float:
		return strconv.ParseFloat(value, 64)
	case variant.String:
		return value, nil
	case variant.PackedBytes:
		return []byte(value), nil
	case variant.PackedInt64s, variant.PackedFloat64s, variant.PackedStrings:
		return parseList(value, a.Type)
	case variant.Nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%s arguments cannot be entered as text", typeStr(a))
}

// parseList reads space-separated elements.
func parseList(value string, t variant.Type) (any, error) {
	fields := strings.Fields(value)
	switch t {
	case variant.PackedInt64s:
		out := make([]int64, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseInt(f, 0, 64)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case variant.PackedFloat64s:
		out := make([]float64, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return fields, nil
}

// callOnNew constructs class, calls method with the parsed arguments and
// releases the object.
func callOnNew(ctx context.Context, rt *runtime.Runtime, class, method string, raw []string) (string, error) {
	if rt == nil {
		return "", fmt.Errorf("no engine loaded; use -wasm or -lib")
	}
	c, ok := rt.DB().Class(class)
	if !ok {
		return "", fmt.Errorf("unknown class %q", class)
	}
	m, ok := c.Method(method)
	if !ok {
		return "", fmt.Errorf("%s has no method %q", class, method)
	}
	if len(raw) != m.Arity() {
		return "", fmt.Errorf("%s takes %d arguments, got %d", formatMethod(m), m.Arity(), len(raw))
	}
	args := make([]any, len(raw))
	for i, s := range raw {
		v, err := parseArg(s, m.Args[i])
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}

	obj, err := rt.New(ctx, class, nil)
	if err != nil {
		return "", fmt.Errorf("construct %s: %w", class, err)
	}
	defer obj.Release(ctx)

	result, err := obj.Call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}
