package synth

import "github.com/tetratelabs/wazero/api"

// ULEB128 encodes an unsigned value in LEB128 format.
func ULEB128(v uint32) []byte {
	var result []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		result = append(result, b)
		if v == 0 {
			break
		}
	}
	return result
}

// SLEB128 encodes a signed value in LEB128 format.
func SLEB128[T int32 | int64](v T) []byte {
	var result []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(result, b)
		}
		result = append(result, b|0x80)
	}
}

// ValType converts a wazero value type to its binary encoding.
func ValType(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI64:
		return 0x7e
	case api.ValueTypeF32:
		return 0x7d
	case api.ValueTypeF64:
		return 0x7c
	default:
		return 0x7f
	}
}

func name(s string) []byte {
	return append(ULEB128(uint32(len(s))), s...)
}

func section(id byte, body []byte) []byte {
	out := append([]byte{id}, ULEB128(uint32(len(body)))...)
	return append(out, body...)
}
