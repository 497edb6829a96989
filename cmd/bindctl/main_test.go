package main

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/engine/local"
	"github.com/wippyai/nativebind/runtime"
	"github.com/wippyai/nativebind/variant"
)

const testAPI = `
version: "1.0"
classes:
  - name: Object
  - name: Counter
    parent: Object
    methods:
      - name: add
        args: [{name: n, type: int}]
        return: int
      - name: scale
        args: [{name: f, type: float}, {name: label, type: String}]
        return: String
      - name: attach
        args: [{name: target, type: Counter}]
      - name: sum
        args: [{name: values, type: PackedInt64Array}]
        return: int
`

func TestParseArg(t *testing.T) {
	tests := []struct {
		in      string
		typ     variant.Type
		want    any
		wantErr bool
	}{
		{"true", variant.Bool, true, false},
		{"maybe", variant.Bool, nil, true},
		{" 42 ", variant.Int, int64(42), false},
		{"0x10", variant.Int, int64(16), false},
		{"1.5", variant.Float, 1.5, false},
		{"hello world", variant.String, "hello world", false},
		{"ab", variant.PackedBytes, []byte("ab"), false},
		{"1 2 3", variant.PackedInt64s, []int64{1, 2, 3}, false},
		{"1 x", variant.PackedInt64s, nil, true},
		{"0.5 2", variant.PackedFloat64s, []float64{0.5, 2}, false},
		{"a b", variant.PackedStrings, []string{"a", "b"}, false},
		{"", variant.Object, nil, true},
	}
	for _, tt := range tests {
		got, err := parseArg(tt.in, classdb.Arg{Name: "a", Type: tt.typ})
		if (err != nil) != tt.wantErr {
			t.Errorf("parseArg(%q, %s) error = %v, wantErr %v", tt.in, tt.typ, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("parseArg(%q, %s) (-want +got):\n%s", tt.in, tt.typ, diff)
		}
	}
}

func TestFormatMethod(t *testing.T) {
	db, err := classdb.Parse([]byte(testAPI))
	if err != nil {
		t.Fatal(err)
	}
	c, _ := db.Class("Counter")
	var got []string
	for _, m := range c.OwnMethods() {
		got = append(got, formatMethod(m))
	}
	want := []string{
		"add(n: s64) -> s64",
		"scale(f: f64, label: string) -> string",
		"attach(target: Counter)",
		"sum(values: list<s64>) -> s64",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("formatMethod (-want +got):\n%s", diff)
	}
}

func TestCallOnNew(t *testing.T) {
	ctx := context.Background()
	db, err := classdb.Parse([]byte(testAPI))
	if err != nil {
		t.Fatal(err)
	}
	eng := local.New("1.0")
	eng.MustDefine(
		local.ClassImpl{Name: "Object"},
		local.ClassImpl{
			Name:   "Counter",
			Parent: "Object",
			Methods: map[string]local.MethodImpl{
				"add": {Arity: 1, Fn: func(ctx context.Context, o *local.Object, args []variant.Variant) (variant.Variant, error) {
					n, err := variant.To[int64](args[0])
					if err != nil {
						return variant.Variant{}, err
					}
					return variant.NewInt(n + 1), nil
				}},
			},
		},
	)
	rt, err := runtime.New(ctx, eng, db)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(ctx)

	got, err := callOnNew(ctx, rt, "Counter", "add", []string{"41"})
	if err != nil {
		t.Fatalf("callOnNew: %v", err)
	}
	if got != "42" {
		t.Errorf("result = %q, want 42", got)
	}
	if n := eng.Len(); n != 0 {
		t.Errorf("%d objects left after the call", n)
	}

	errCases := []struct {
		name          string
		class, method string
		raw           []string
	}{
		{"unknown class", "Missing", "add", nil},
		{"unknown method", "Counter", "nope", nil},
		{"arity", "Counter", "add", nil},
		{"bad argument", "Counter", "add", []string{"x"}},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := callOnNew(ctx, rt, tt.class, tt.method, tt.raw); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := callOnNew(ctx, nil, "Counter", "add", []string{"1"}); err == nil {
		t.Error("expected an error without an engine")
	}
}
