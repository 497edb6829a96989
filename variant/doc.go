// Package variant is the value model that crosses the managed/native boundary.
//
// Every argument and result of a native call, every argument of a virtual
// call and every signal argument is a Variant. The package has three parts:
//
//	Variant       - immutable tagged value (bool, int, float, String, Object,
//	                Array and packed arrays)
//	From / To     - conversion between Go values and Variants
//	Encoder       - writes Variants into native linear memory
//	Decoder       - reads Variants back out of native linear memory
//
// # Cell Layout
//
// In native memory a Variant is a 16 byte cell aligned to 8:
//
//	Offset  Size  Field
//	──────────────────────────────────────
//	0       4     tag (Type)
//	4       4     aux (length / count)
//	8       8     payload (bits or pointer)
//
// Scalars keep their bits in the payload. Strings, arrays and packed arrays
// store a pointer to out-of-line data in the payload and the element count
// in aux:
//
//	Type                 Out-of-line data
//	─────────────────────────────────────────────────────
//	String               UTF-8 bytes
//	Array                count cells
//	PackedByteArray      count bytes
//	PackedInt64Array     count little-endian int64
//	PackedFloat64Array   count little-endian IEEE-754 float64
//	PackedStringArray    count (ptr u32, len u32) pairs
//
// Conversions are exact: integers and floats keep their bits, sequences keep
// their order and length.
package variant
