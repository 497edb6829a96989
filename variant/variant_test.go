package variant

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/nativebind/errors"
)

// mockMemory implements Memory and MemorySizer over a byte slice
type mockMemory struct {
	data []byte
}

func newMockMemory(size int) *mockMemory {
	return &mockMemory{data: make([]byte, size)}
}

func (m *mockMemory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return fmt.Errorf("out of bounds: %d+%d", offset, length)
	}
	return nil
}

func (m *mockMemory) Size() uint32 { return uint32(len(m.data)) }

func (m *mockMemory) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *mockMemory) ReadU8(offset uint32) (uint8, error) {
	return m.data[offset], nil
}

func (m *mockMemory) ReadU16(offset uint32) (uint16, error) {
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *mockMemory) ReadU32(offset uint32) (uint32, error) {
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *mockMemory) ReadU64(offset uint32) (uint64, error) {
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *mockMemory) WriteU8(offset uint32, value uint8) error {
	m.data[offset] = value
	return nil
}

func (m *mockMemory) WriteU16(offset uint32, value uint16) error {
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU32(offset uint32, value uint32) error {
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU64(offset uint32, value uint64) error {
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// mockAllocator is a bump allocator that records frees
type mockAllocator struct {
	freed  []Allocation
	offset uint32
	limit  int // fail after this many allocations when > 0
	count  int
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{offset: 1024} // start at 1024 to test non-zero offsets
}

func (a *mockAllocator) Alloc(size, align uint32) (uint32, error) {
	a.count++
	if a.limit > 0 && a.count > a.limit {
		return 0, fmt.Errorf("out of memory")
	}
	a.offset = alignTo(a.offset, align)
	ptr := a.offset
	a.offset += size
	return ptr, nil
}

func (a *mockAllocator) Free(ptr, size, align uint32) {
	a.freed = append(a.freed, Allocation{Ptr: ptr, Size: size, Align: align})
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func roundTrip(t *testing.T, args ...Variant) []Variant {
	t.Helper()
	mem := newMockMemory(64 * 1024)
	alloc := newMockAllocator()

	ptr, allocs, err := NewEncoder().EncodeArgs(args, mem, alloc)
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	defer allocs.FreeAndRelease(alloc)

	got, err := NewDecoder().DecodeArgs(ptr, uint32(len(args)), mem)
	if err != nil {
		t.Fatalf("DecodeArgs: %v", err)
	}
	return got
}

func TestCodec_ScalarRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
	}{
		{"nil", Variant{}},
		{"bool_true", NewBool(true)},
		{"bool_false", NewBool(false)},
		{"int_42", NewInt(42)},
		{"int_negative", NewInt(-123456789012)},
		{"int_min", NewInt(math.MinInt64)},
		{"int_max", NewInt(math.MaxInt64)},
		{"float", NewFloat(3.14159)},
		{"float_negative_zero", NewFloat(math.Copysign(0, -1))},
		{"float_nan", NewFloat(math.NaN())},
		{"float_inf", NewFloat(math.Inf(-1))},
		{"object", NewObject(0xdeadbeef00)},
		{"object_null", NewObject(0)},
		{"string", NewString("hello")},
		{"string_empty", NewString("")},
		{"string_unicode", NewString("héllo, 世界")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.v)
			if !got[0].Equal(tt.v) {
				t.Errorf("round trip = %v, want %v", got[0], tt.v)
			}
		})
	}
}

func TestCodec_SequenceRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		v    Variant
	}{
		{"strings_abc", NewPackedStrings([]string{"a", "b", "c"})},
		{"strings_duplicates", NewPackedStrings([]string{"b", "a", "b", "", "a"})},
		{"strings_empty", NewPackedStrings(nil)},
		{"bytes", NewPackedBytes([]byte{9, 0, 255, 1})},
		{"int64s", NewPackedInt64s([]int64{3, -1, math.MaxInt64, 3})},
		{"float64s", NewPackedFloat64s([]float64{2.5, -0.125, 1e300})},
		{"array_mixed", NewArray([]Variant{NewInt(1), NewString("two"), NewBool(true), Variant{}})},
		{"array_nested", NewArray([]Variant{
			NewArray([]Variant{NewInt(1), NewInt(2)}),
			NewArray(nil),
			NewPackedStrings([]string{"x", "y"}),
		})},
		{"array_empty", NewArray(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.v)
			if !got[0].Equal(tt.v) {
				t.Errorf("round trip = %v, want %v", got[0], tt.v)
			}
			if got[0].Len() != tt.v.Len() {
				t.Errorf("Len = %d, want %d", got[0].Len(), tt.v.Len())
			}
		})
	}
}

func TestCodec_GoSequenceOrder(t *testing.T) {
	in := []string{"a", "b", "c"}
	v, err := From(in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := To[[]string](roundTrip(t, v)[0])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_MultipleArgs(t *testing.T) {
	args := []Variant{NewInt(7), NewString("name"), NewFloat(0.5), NewObject(99)}
	got := roundTrip(t, args...)
	if len(got) != len(args) {
		t.Fatalf("got %d args, want %d", len(got), len(args))
	}
	for i := range args {
		if !got[i].Equal(args[i]) {
			t.Errorf("arg %d = %v, want %v", i, got[i], args[i])
		}
	}
}

func TestCodec_CellLayout(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator()
	allocs := NewAllocations()
	defer allocs.Release()

	if err := NewEncoder().Encode(NewString("abc"), 0, mem, alloc, allocs); err != nil {
		t.Fatal(err)
	}
	if tag := binary.LittleEndian.Uint32(mem.data[0:]); tag != uint32(String) {
		t.Errorf("tag = %d, want %d", tag, String)
	}
	if aux := binary.LittleEndian.Uint32(mem.data[4:]); aux != 3 {
		t.Errorf("aux = %d, want 3", aux)
	}
	ptr := binary.LittleEndian.Uint64(mem.data[8:])
	if got := string(mem.data[ptr : ptr+3]); got != "abc" {
		t.Errorf("payload data = %q, want abc", got)
	}
	if allocs.Len() != 1 {
		t.Errorf("allocations = %d, want 1", allocs.Len())
	}
}

func TestCodec_EmptyArgs(t *testing.T) {
	mem := newMockMemory(16)
	alloc := newMockAllocator()
	ptr, allocs, err := NewEncoder().EncodeArgs(nil, mem, alloc)
	if err != nil {
		t.Fatal(err)
	}
	if ptr != 0 || allocs.Len() != 0 {
		t.Errorf("ptr = %d, allocations = %d, want 0, 0", ptr, allocs.Len())
	}
	got, err := NewDecoder().DecodeArgs(0, 0, mem)
	if err != nil || len(got) != 0 {
		t.Errorf("DecodeArgs(0, 0) = %v, %v", got, err)
	}
}

func TestCodec_FreeOnError(t *testing.T) {
	mem := newMockMemory(64 * 1024)
	alloc := newMockAllocator()
	alloc.limit = 2

	args := []Variant{NewString("one"), NewString("two")}
	_, _, err := NewEncoder().EncodeArgs(args, mem, alloc)
	if errors.KindOf(err) != errors.KindAllocation {
		t.Fatalf("err = %v, want allocation error", err)
	}
	// cell array + first string were allocated, both must be freed
	if len(alloc.freed) != 2 {
		t.Errorf("freed %d blocks, want 2", len(alloc.freed))
	}
}

func TestAllocations_FreeReverseOrder(t *testing.T) {
	alloc := newMockAllocator()
	a := NewAllocations()
	a.Add(100, 4, 1)
	a.Add(0, 0, 1)
	a.Add(200, 8, 8)
	a.Free(alloc)

	want := []Allocation{{Ptr: 200, Size: 8, Align: 8}, {Ptr: 100, Size: 4, Align: 1}}
	if diff := cmp.Diff(want, alloc.freed); diff != "" {
		t.Errorf("freed mismatch (-want +got):\n%s", diff)
	}
	if a.Len() != 0 {
		t.Errorf("Len after Free = %d", a.Len())
	}
}

func putCell(mem *mockMemory, addr uint32, tag, aux uint32, payload uint64) {
	binary.LittleEndian.PutUint32(mem.data[addr:], tag)
	binary.LittleEndian.PutUint32(mem.data[addr+4:], aux)
	binary.LittleEndian.PutUint64(mem.data[addr+8:], payload)
}

func TestDecoder_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mem *mockMemory)
		kind  errors.Kind
	}{
		{
			name:  "unknown_tag",
			setup: func(mem *mockMemory) { putCell(mem, 0, 200, 0, 0) },
			kind:  errors.KindInvalidData,
		},
		{
			name:  "wide_pointer",
			setup: func(mem *mockMemory) { putCell(mem, 0, uint32(String), 1, 1<<40) },
			kind:  errors.KindInvalidData,
		},
		{
			name:  "string_out_of_bounds",
			setup: func(mem *mockMemory) { putCell(mem, 0, uint32(String), 100000, 64) },
			kind:  errors.KindOutOfBounds,
		},
		{
			name:  "array_out_of_bounds",
			setup: func(mem *mockMemory) { putCell(mem, 0, uint32(Array), 1<<20, 64) },
			kind:  errors.KindOutOfBounds,
		},
		{
			name: "invalid_utf8",
			setup: func(mem *mockMemory) {
				putCell(mem, 0, uint32(String), 2, 64)
				mem.data[64], mem.data[65] = 0xff, 0xfe
			},
			kind: errors.KindInvalidUTF8,
		},
		{
			name: "packed_string_invalid_utf8",
			setup: func(mem *mockMemory) {
				putCell(mem, 0, uint32(PackedStrings), 1, 64)
				binary.LittleEndian.PutUint32(mem.data[64:], 128)
				binary.LittleEndian.PutUint32(mem.data[68:], 1)
				mem.data[128] = 0xc0
			},
			kind: errors.KindInvalidUTF8,
		},
		{
			name: "self_referencing_array",
			setup: func(mem *mockMemory) {
				putCell(mem, 0, uint32(Array), 1, 0)
			},
			kind: errors.KindOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newMockMemory(4096)
			tt.setup(mem)
			_, err := NewDecoder().Decode(0, mem)
			if got := errors.KindOf(err); got != tt.kind {
				t.Errorf("kind = %q (err %v), want %q", got, err, tt.kind)
			}
		})
	}
}

func TestDecoder_DoesNotAliasMemory(t *testing.T) {
	mem := newMockMemory(4096)
	alloc := newMockAllocator()
	ptr, allocs, err := NewEncoder().EncodeArgs([]Variant{NewPackedBytes([]byte{1, 2, 3})}, mem, alloc)
	if err != nil {
		t.Fatal(err)
	}
	defer allocs.Release()

	v, err := NewDecoder().Decode(ptr, mem)
	if err != nil {
		t.Fatal(err)
	}
	for i := range mem.data {
		mem.data[i] = 0
	}
	b, _ := v.AsPackedBytes()
	if diff := cmp.Diff([]byte{1, 2, 3}, b); diff != "" {
		t.Errorf("decoded bytes changed with memory (-want +got):\n%s", diff)
	}
}

func TestVariant_AccessorsCopy(t *testing.T) {
	src := []int64{1, 2, 3}
	v := NewPackedInt64s(src)
	src[0] = 100

	got, _ := v.AsPackedInt64s()
	if got[0] != 1 {
		t.Errorf("constructor aliased input: got %d", got[0])
	}
	got[1] = 200
	again, _ := v.AsPackedInt64s()
	if again[1] != 2 {
		t.Errorf("accessor aliased storage: got %d", again[1])
	}
}

func TestVariant_WrongAccessor(t *testing.T) {
	v := NewInt(1)
	if _, err := v.AsString(); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("AsString on int: err = %v", err)
	}
	if _, err := v.AsFloat(); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("AsFloat on int: err = %v", err)
	}
	if _, err := NewString("x").AsObject(); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("AsObject on string: err = %v", err)
	}
}

func TestVariant_String(t *testing.T) {
	tests := []struct {
		v    Variant
		want string
	}{
		{Variant{}, "nil"},
		{NewBool(true), "true"},
		{NewInt(-5), "-5"},
		{NewFloat(1.5), "1.5"},
		{NewString("a"), `"a"`},
		{NewObject(16), "Object(0x10)"},
		{NewArray([]Variant{NewInt(1), NewString("b")}), `[1, "b"]`},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestFromTo_RoundTrip(t *testing.T) {
	check := func(name string, in any, out func(Variant) (any, error)) {
		t.Run(name, func(t *testing.T) {
			v, err := From(in)
			if err != nil {
				t.Fatalf("From: %v", err)
			}
			got, err := out(roundTrip(t, v)[0])
			if err != nil {
				t.Fatalf("To: %v", err)
			}
			if diff := cmp.Diff(in, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
	check("bool", true, func(v Variant) (any, error) { return To[bool](v) })
	check("int", 42, func(v Variant) (any, error) { return To[int](v) })
	check("int8", int8(-8), func(v Variant) (any, error) { return To[int8](v) })
	check("int16", int16(-1600), func(v Variant) (any, error) { return To[int16](v) })
	check("int32", int32(1<<30), func(v Variant) (any, error) { return To[int32](v) })
	check("int64", int64(math.MinInt64), func(v Variant) (any, error) { return To[int64](v) })
	check("uint8", uint8(255), func(v Variant) (any, error) { return To[uint8](v) })
	check("uint16", uint16(65535), func(v Variant) (any, error) { return To[uint16](v) })
	check("uint32", uint32(math.MaxUint32), func(v Variant) (any, error) { return To[uint32](v) })
	check("uint64", uint64(math.MaxInt64), func(v Variant) (any, error) { return To[uint64](v) })
	check("float32", float32(3.25), func(v Variant) (any, error) { return To[float32](v) })
	check("float64", 2.718281828, func(v Variant) (any, error) { return To[float64](v) })
	check("string", "héllo", func(v Variant) (any, error) { return To[string](v) })
	check("bytes", []byte{1, 2}, func(v Variant) (any, error) { return To[[]byte](v) })
	check("ints", []int{3, 1, 2}, func(v Variant) (any, error) { return To[[]int](v) })
	check("int64s", []int64{-1, 0}, func(v Variant) (any, error) { return To[[]int64](v) })
	check("float64s", []float64{0.5}, func(v Variant) (any, error) { return To[[]float64](v) })
	check("strings", []string{"c", "a", "b"}, func(v Variant) (any, error) { return To[[]string](v) })
	check("any", []any{int64(1), "x", true}, func(v Variant) (any, error) { return To[[]any](v) })
}

type fakeObject struct{ ptr uint64 }

func (o *fakeObject) NativePtr() uint64 { return o.ptr }

func TestFrom_ObjectRef(t *testing.T) {
	v, err := From(&fakeObject{ptr: 0x1234})
	if err != nil {
		t.Fatal(err)
	}
	if v.Type() != Object {
		t.Fatalf("type = %v, want Object", v.Type())
	}
	ptr, err := To[uint64](v)
	if err != nil || ptr != 0x1234 {
		t.Errorf("To[uint64] = %#x, %v", ptr, err)
	}
}

func TestFrom_Errors(t *testing.T) {
	if _, err := From(uint64(math.MaxUint64)); errors.KindOf(err) != errors.KindOverflow {
		t.Errorf("From(MaxUint64) err = %v, want overflow", err)
	}
	if _, err := From(struct{}{}); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Errorf("From(struct) err = %v, want type mismatch", err)
	}

	_, err := FromArgs([]any{1, "ok", make(chan int)})
	var e *errors.Error
	if !asError(err, &e) {
		t.Fatalf("FromArgs err = %v, want *errors.Error", err)
	}
	if diff := cmp.Diff([]string{"arg2"}, e.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestTo_Errors(t *testing.T) {
	tests := []struct {
		name string
		conv func() error
		kind errors.Kind
	}{
		{"int8_overflow", func() error { _, err := To[int8](NewInt(300)); return err }, errors.KindOverflow},
		{"uint_negative", func() error { _, err := To[uint](NewInt(-1)); return err }, errors.KindOverflow},
		{"uint16_overflow", func() error { _, err := To[uint16](NewInt(70000)); return err }, errors.KindOverflow},
		{"int_from_float", func() error { _, err := To[int](NewFloat(1)); return err }, errors.KindTypeMismatch},
		{"string_from_int", func() error { _, err := To[string](NewInt(1)); return err }, errors.KindTypeMismatch},
		{"unsupported_target", func() error { _, err := To[complex128](NewInt(1)); return err }, errors.KindTypeMismatch},
		{"float64_from_inexact_int", func() error { _, err := To[float64](NewInt(1<<53 + 1)); return err }, errors.KindOverflow},
		{"float32_rounding", func() error { _, err := To[float32](NewFloat(0.1)); return err }, errors.KindOverflow},
		{"float32_range", func() error { _, err := To[float32](NewFloat(1e300)); return err }, errors.KindOverflow},
		{"float32_from_inexact_int", func() error { _, err := To[float32](NewInt(1<<24 + 1)); return err }, errors.KindOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.KindOf(tt.conv()); got != tt.kind {
				t.Errorf("kind = %q, want %q", got, tt.kind)
			}
		})
	}
}

func TestTo_NilIsZero(t *testing.T) {
	if s, err := To[string](Variant{}); err != nil || s != "" {
		t.Errorf("To[string](nil) = %q, %v", s, err)
	}
	if n, err := To[int](Variant{}); err != nil || n != 0 {
		t.Errorf("To[int](nil) = %d, %v", n, err)
	}
	if s, err := To[[]string](Variant{}); err != nil || s != nil {
		t.Errorf("To[[]string](nil) = %v, %v", s, err)
	}
}

func TestTo_IntToFloat(t *testing.T) {
	f, err := To[float64](NewInt(3))
	if err != nil || f != 3 {
		t.Errorf("To[float64](3) = %v, %v", f, err)
	}
	if f, err := To[float64](NewInt(1 << 53)); err != nil || f != 1<<53 {
		t.Errorf("To[float64](2^53) = %v, %v", f, err)
	}
	if f, err := To[float32](NewFloat(math.Inf(-1))); err != nil || !math.IsInf(float64(f), -1) {
		t.Errorf("To[float32](-Inf) = %v, %v", f, err)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   Variant
		to   Type
		want Variant
		kind errors.Kind
	}{
		{"same", NewInt(1), Int, NewInt(1), ""},
		{"nil", Variant{}, String, Variant{}, ""},
		{"int_to_float", NewInt(2), Float, NewFloat(2), ""},
		{"largest_exact_int_to_float", NewInt(-1 << 53), Float, NewFloat(-1 << 53), ""},
		{"inexact_int_to_float", NewInt(1<<53 + 1), Float, Variant{}, errors.KindOverflow},
		{"max_int_to_float", NewInt(math.MaxInt64), Float, Variant{}, errors.KindOverflow},
		{"inexact_int64s_to_float64s", NewPackedInt64s([]int64{1, 1<<62 + 1}), PackedFloat64s, Variant{}, errors.KindOverflow},
		{"integral_float_to_int", NewFloat(4), Int, NewInt(4), ""},
		{"fractional_float_to_int", NewFloat(4.5), Int, Variant{}, errors.KindOverflow},
		{"int64s_to_float64s", NewPackedInt64s([]int64{1, 2}), PackedFloat64s, NewPackedFloat64s([]float64{1, 2}), ""},
		{"string_to_int", NewString("1"), Int, Variant{}, errors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.to)
			if kind := errors.KindOf(err); kind != tt.kind {
				t.Fatalf("kind = %q, want %q (err %v)", kind, tt.kind, err)
			}
			if err == nil && !got.Equal(tt.want) {
				t.Errorf("Coerce = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for typ := Nil; typ < typeCount; typ++ {
		got, err := ParseType(typ.String())
		if err != nil {
			t.Errorf("ParseType(%q): %v", typ.String(), err)
			continue
		}
		if got != typ {
			t.Errorf("ParseType(%q) = %v, want %v", typ.String(), got, typ)
		}
	}
	if got, err := ParseType("void"); err != nil || got != Nil {
		t.Errorf("ParseType(void) = %v, %v", got, err)
	}
	if _, err := ParseType("Vector9"); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("ParseType(Vector9) err = %v, want not_found", err)
	}
	if Type(99).String() != "invalid" {
		t.Errorf("Type(99).String() = %q", Type(99).String())
	}
}

func TestType_WIT(t *testing.T) {
	if w, _ := Int.WIT(); !isType[wit.S64](w) {
		t.Errorf("Int.WIT() = %T", w)
	}
	if w, _ := String.WIT(); !isType[wit.String](w) {
		t.Errorf("String.WIT() = %T", w)
	}
	w, ok := PackedStrings.WIT()
	if !ok {
		t.Fatal("PackedStrings.WIT() not ok")
	}
	td, isDef := w.(*wit.TypeDef)
	if !isDef {
		t.Fatalf("PackedStrings.WIT() = %T", w)
	}
	if l, isList := td.Kind.(*wit.List); !isList || !isType[wit.String](l.Type) {
		t.Errorf("PackedStrings.WIT() kind = %#v", td.Kind)
	}
	if _, ok := Array.WIT(); ok {
		t.Error("Array.WIT() should report false")
	}
}

func isType[T any](v any) bool {
	_, ok := v.(T)
	return ok
}

type wrapped struct{ ptr uint64 }

func TestToContext_Hook(t *testing.T) {
	hook := Hook(func(v Variant, out any) (bool, error) {
		p, ok := out.(**wrapped)
		if !ok {
			return false, nil
		}
		ptr, err := v.AsObject()
		if err != nil {
			return true, err
		}
		*p = &wrapped{ptr: ptr}
		return true, nil
	})
	ctx := WithHook(context.Background(), hook)

	w, err := ToContext[*wrapped](ctx, NewObject(0x99))
	if err != nil || w == nil || w.ptr != 0x99 {
		t.Fatalf("ToContext[*wrapped] = %+v, %v", w, err)
	}
	if _, err := ToContext[*wrapped](ctx, NewInt(1)); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Fatalf("hook error not returned: %v", err)
	}
	n, err := ToContext[int](ctx, NewInt(5))
	if err != nil || n != 5 {
		t.Fatalf("fallback ToContext[int] = %d, %v", n, err)
	}
	if _, err := ToContext[*wrapped](context.Background(), NewObject(1)); errors.KindOf(err) != errors.KindTypeMismatch {
		t.Fatalf("without hook err = %v", err)
	}
}
