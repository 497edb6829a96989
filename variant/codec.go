package variant

import (
	"encoding/binary"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/errors"
)

const (
	CellSize  = 16
	CellAlign = 8

	// MaxDepth bounds Array nesting on both encode and decode.
	MaxDepth = 64
)

// Encoder writes Variants into native memory.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeArgs writes args as a contiguous cell array and returns its address.
// An empty argument list encodes to address 0. On error everything allocated
// so far has been freed.
func (e *Encoder) EncodeArgs(args []Variant, mem Memory, alloc Allocator) (uint32, *Allocations, error) {
	allocs := NewAllocations()
	if len(args) == 0 {
		return 0, allocs, nil
	}
	ptr, err := allocCells(len(args), alloc, allocs)
	if err == nil {
		for i, a := range args {
			if err = e.encode(a, ptr+uint32(i)*CellSize, mem, alloc, allocs, 0); err != nil {
				err = withPath(err, "arg"+strconv.Itoa(i))
				break
			}
		}
	}
	if err != nil {
		allocs.Free(alloc)
		return 0, allocs, err
	}
	return ptr, allocs, nil
}

// Encode writes v into the cell at addr. Out-of-line data is allocated with
// alloc and recorded in allocs.
func (e *Encoder) Encode(v Variant, addr uint32, mem Memory, alloc Allocator, allocs *Allocations) error {
	return e.encode(v, addr, mem, alloc, allocs, 0)
}

func (e *Encoder) encode(v Variant, addr uint32, mem Memory, alloc Allocator, allocs *Allocations, depth int) error {
	if depth > MaxDepth {
		return errors.New(errors.PhaseEncode, errors.KindOverflow).
			Detail("array nesting deeper than %d", MaxDepth).Build()
	}
	switch v.typ {
	case Nil, Bool, Int, Float, Object:
		return writeCell(mem, addr, v.typ, 0, v.bits)

	case String:
		s := v.ref.(string)
		ptr, err := writeBytes([]byte(s), 1, mem, alloc, allocs)
		if err != nil {
			return err
		}
		return writeCell(mem, addr, String, uint32(len(s)), uint64(ptr))

	case Array:
		elems := v.ref.([]Variant)
		if len(elems) == 0 {
			return writeCell(mem, addr, Array, 0, 0)
		}
		ptr, err := allocCells(len(elems), alloc, allocs)
		if err != nil {
			return err
		}
		for i, el := range elems {
			if err := e.encode(el, ptr+uint32(i)*CellSize, mem, alloc, allocs, depth+1); err != nil {
				return withPath(err, strconv.Itoa(i))
			}
		}
		return writeCell(mem, addr, Array, uint32(len(elems)), uint64(ptr))

	case PackedBytes:
		b := v.ref.([]byte)
		ptr, err := writeBytes(b, 1, mem, alloc, allocs)
		if err != nil {
			return err
		}
		return writeCell(mem, addr, PackedBytes, uint32(len(b)), uint64(ptr))

	case PackedInt64s:
		src := v.ref.([]int64)
		buf := make([]byte, 8*len(src))
		for i, n := range src {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(n))
		}
		ptr, err := writeBytes(buf, 8, mem, alloc, allocs)
		if err != nil {
			return err
		}
		return writeCell(mem, addr, PackedInt64s, uint32(len(src)), uint64(ptr))

	case PackedFloat64s:
		src := v.ref.([]float64)
		buf := make([]byte, 8*len(src))
		for i, f := range src {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
		}
		ptr, err := writeBytes(buf, 8, mem, alloc, allocs)
		if err != nil {
			return err
		}
		return writeCell(mem, addr, PackedFloat64s, uint32(len(src)), uint64(ptr))

	case PackedStrings:
		src := v.ref.([]string)
		pairs := make([]byte, 8*len(src))
		for i, s := range src {
			sp, err := writeBytes([]byte(s), 1, mem, alloc, allocs)
			if err != nil {
				return withPath(err, strconv.Itoa(i))
			}
			binary.LittleEndian.PutUint32(pairs[i*8:], sp)
			binary.LittleEndian.PutUint32(pairs[i*8+4:], uint32(len(s)))
		}
		ptr, err := writeBytes(pairs, 4, mem, alloc, allocs)
		if err != nil {
			return err
		}
		return writeCell(mem, addr, PackedStrings, uint32(len(src)), uint64(ptr))
	}
	return errors.InvalidData(errors.PhaseEncode, nil, "unknown variant type "+strconv.Itoa(int(v.typ)))
}

func writeCell(mem Memory, addr uint32, t Type, aux uint32, payload uint64) error {
	var cell [CellSize]byte
	binary.LittleEndian.PutUint32(cell[0:], uint32(t))
	binary.LittleEndian.PutUint32(cell[4:], aux)
	binary.LittleEndian.PutUint64(cell[8:], payload)
	return mem.Write(addr, cell[:])
}

func allocCells(n int, alloc Allocator, allocs *Allocations) (uint32, error) {
	if uint64(n)*CellSize > math.MaxUint32 {
		return 0, errors.Overflow(errors.PhaseEncode, nil, n, "cell array")
	}
	size := uint32(n) * CellSize
	ptr, err := alloc.Alloc(size, CellAlign)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindAllocation, err, "cell array")
	}
	allocs.Add(ptr, size, CellAlign)
	return ptr, nil
}

// writeBytes copies data out of line. Empty data allocates nothing and
// returns pointer 0.
func writeBytes(data []byte, align uint32, mem Memory, alloc Allocator, allocs *Allocations) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return 0, errors.Overflow(errors.PhaseEncode, nil, len(data), "u32 length")
	}
	size := uint32(len(data))
	ptr, err := alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindAllocation, err, "out-of-line data")
	}
	allocs.Add(ptr, size, align)
	if err := mem.Write(ptr, data); err != nil {
		return 0, err
	}
	return ptr, nil
}

// Decoder reads Variants out of native memory.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeArgs reads argc consecutive cells starting at ptr.
func (d *Decoder) DecodeArgs(ptr, argc uint32, mem Memory) ([]Variant, error) {
	if argc == 0 {
		return nil, nil
	}
	if err := checkRange(mem, ptr, uint64(argc)*CellSize); err != nil {
		return nil, err
	}
	out := make([]Variant, argc)
	for i := uint32(0); i < argc; i++ {
		v, err := d.decode(ptr+i*CellSize, mem, 0)
		if err != nil {
			return nil, withPath(err, "arg"+strconv.Itoa(int(i)))
		}
		out[i] = v
	}
	return out, nil
}

// Decode reads the cell at addr. The result shares no memory with mem.
func (d *Decoder) Decode(addr uint32, mem Memory) (Variant, error) {
	return d.decode(addr, mem, 0)
}

func (d *Decoder) decode(addr uint32, mem Memory, depth int) (Variant, error) {
	if depth > MaxDepth {
		return Variant{}, errors.New(errors.PhaseDecode, errors.KindOverflow).
			Detail("array nesting deeper than %d", MaxDepth).Build()
	}
	cell, err := mem.Read(addr, CellSize)
	if err != nil {
		return Variant{}, err
	}
	t := Type(binary.LittleEndian.Uint32(cell[0:]))
	aux := binary.LittleEndian.Uint32(cell[4:])
	payload := binary.LittleEndian.Uint64(cell[8:])

	switch t {
	case Nil:
		return Variant{}, nil
	case Bool:
		return NewBool(payload != 0), nil
	case Int, Float, Object:
		return Variant{typ: t, bits: payload}, nil
	}
	if !t.Valid() {
		return Variant{}, errors.InvalidData(errors.PhaseDecode, nil, "unknown tag "+strconv.FormatUint(uint64(t), 10))
	}
	if payload>>32 != 0 {
		return Variant{}, errors.InvalidData(errors.PhaseDecode, nil, "pointer exceeds 32 bits")
	}
	ptr := uint32(payload)

	switch t {
	case String:
		b, err := readBytes(mem, ptr, uint64(aux))
		if err != nil {
			return Variant{}, err
		}
		if !utf8.Valid(b) {
			return Variant{}, errors.InvalidUTF8(errors.PhaseDecode, nil, b)
		}
		return NewString(string(b)), nil

	case Array:
		if err := checkRange(mem, ptr, uint64(aux)*CellSize); err != nil {
			return Variant{}, err
		}
		elems := make([]Variant, aux)
		for i := uint32(0); i < aux; i++ {
			el, err := d.decode(ptr+i*CellSize, mem, depth+1)
			if err != nil {
				return Variant{}, withPath(err, strconv.Itoa(int(i)))
			}
			elems[i] = el
		}
		return Variant{typ: Array, ref: elems}, nil

	case PackedBytes:
		b, err := readBytes(mem, ptr, uint64(aux))
		if err != nil {
			return Variant{}, err
		}
		return NewPackedBytes(b), nil

	case PackedInt64s:
		b, err := readBytes(mem, ptr, uint64(aux)*8)
		if err != nil {
			return Variant{}, err
		}
		out := make([]int64, aux)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(b[i*8:]))
		}
		return Variant{typ: PackedInt64s, ref: out}, nil

	case PackedFloat64s:
		b, err := readBytes(mem, ptr, uint64(aux)*8)
		if err != nil {
			return Variant{}, err
		}
		out := make([]float64, aux)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
		return Variant{typ: PackedFloat64s, ref: out}, nil

	case PackedStrings:
		pairs, err := readBytes(mem, ptr, uint64(aux)*8)
		if err != nil {
			return Variant{}, err
		}
		out := make([]string, aux)
		for i := range out {
			sp := binary.LittleEndian.Uint32(pairs[i*8:])
			sl := binary.LittleEndian.Uint32(pairs[i*8+4:])
			b, err := readBytes(mem, sp, uint64(sl))
			if err != nil {
				return Variant{}, withPath(err, strconv.Itoa(i))
			}
			if !utf8.Valid(b) {
				return Variant{}, errors.InvalidUTF8(errors.PhaseDecode, []string{strconv.Itoa(i)}, b)
			}
			out[i] = string(b)
		}
		return Variant{typ: PackedStrings, ref: out}, nil
	}
	return Variant{}, errors.InvalidData(errors.PhaseDecode, nil, "unknown tag "+strconv.FormatUint(uint64(t), 10))
}

// readBytes copies size bytes at ptr after checking bounds.
func readBytes(mem Memory, ptr uint32, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if err := checkRange(mem, ptr, size); err != nil {
		return nil, err
	}
	b, err := mem.Read(ptr, uint32(size))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// checkRange rejects ranges past the end of memory before any Go slice of
// that size is allocated. Memories without a size only get the 32-bit check.
func checkRange(mem Memory, ptr uint32, size uint64) error {
	end := uint64(ptr) + size
	limit := uint64(math.MaxUint32) + 1
	if s, ok := mem.(nativebind.MemorySizer); ok {
		limit = uint64(s.Size())
	}
	if end > limit {
		return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Detail("range [%d, %d) exceeds memory size %d", ptr, end, limit).Build()
	}
	return nil
}
