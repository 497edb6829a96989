// Package synth builds small guest modules for exercising the wasm backend
// without a compiled engine. Every function the guest exports is a
// forwarder to a host import, so a Go fake can play the engine while the
// backend still talks to a real wasm instance with its own linear memory.
package synth

import "github.com/tetratelabs/wazero/api"

// PageSize is the wasm page size in bytes.
const PageSize = 65536

// Builder assembles a guest module.
type Builder struct {
	funcs        []fn
	memoryExport string
	allocExport  string
	memoryPages  uint32
	heapBase     uint32
}

type fn struct {
	module  string
	name    string
	export  string
	params  []api.ValueType
	results []api.ValueType
}

// New returns a builder for a guest with pages of exported memory named
// "memory".
func New(pages uint32) *Builder {
	if pages == 0 {
		pages = 1
	}
	return &Builder{
		memoryPages:  pages,
		memoryExport: "memory",
		heapBase:     1024,
	}
}

// Forward imports module.name and exports a function with the same
// signature under export that calls it.
func (b *Builder) Forward(module, name, export string, params, results []api.ValueType) *Builder {
	b.funcs = append(b.funcs, fn{
		module:  module,
		name:    name,
		export:  export,
		params:  params,
		results: results,
	})
	return b
}

// Alloc adds a bump allocator export with signature (size, align) -> ptr.
// Memory is never reclaimed.
func (b *Builder) Alloc(export string, heapBase uint32) *Builder {
	b.allocExport = export
	if heapBase != 0 {
		b.heapBase = heapBase
	}
	return b
}

// Funcs returns the number of forwarded functions.
func (b *Builder) Funcs() int {
	return len(b.funcs)
}

// Build encodes the module.
func (b *Builder) Build() []byte {
	wasm := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if b.numFuncs() > 0 {
		wasm = append(wasm, section(0x01, b.typeSection())...)
	}
	if len(b.funcs) > 0 {
		wasm = append(wasm, section(0x02, b.importSection())...)
	}
	if b.numFuncs() > 0 {
		wasm = append(wasm, section(0x03, b.funcSection())...)
	}
	wasm = append(wasm, section(0x05, b.memorySection())...)
	if b.allocExport != "" {
		wasm = append(wasm, section(0x06, b.globalSection())...)
	}
	wasm = append(wasm, section(0x07, b.exportSection())...)
	if b.numFuncs() > 0 {
		wasm = append(wasm, section(0x0a, b.codeSection())...)
	}
	return wasm
}

// numFuncs counts defined (non-imported) functions.
func (b *Builder) numFuncs() int {
	n := len(b.funcs)
	if b.allocExport != "" {
		n++
	}
	return n
}

func (b *Builder) typeSection() []byte {
	out := ULEB128(uint32(b.numFuncs()))
	for _, f := range b.funcs {
		out = append(out, funcType(f.params, f.results)...)
	}
	if b.allocExport != "" {
		i32 := api.ValueTypeI32
		out = append(out, funcType([]api.ValueType{i32, i32}, []api.ValueType{i32})...)
	}
	return out
}

func funcType(params, results []api.ValueType) []byte {
	out := []byte{0x60}
	out = append(out, ULEB128(uint32(len(params)))...)
	for _, t := range params {
		out = append(out, ValType(t))
	}
	out = append(out, ULEB128(uint32(len(results)))...)
	for _, t := range results {
		out = append(out, ValType(t))
	}
	return out
}

func (b *Builder) importSection() []byte {
	out := ULEB128(uint32(len(b.funcs)))
	for i, f := range b.funcs {
		out = append(out, name(f.module)...)
		out = append(out, name(f.name)...)
		out = append(out, 0x00)
		out = append(out, ULEB128(uint32(i))...)
	}
	return out
}

// funcSection maps forwarder i to type i; the allocator takes the last type.
func (b *Builder) funcSection() []byte {
	n := b.numFuncs()
	out := ULEB128(uint32(n))
	for i := 0; i < n; i++ {
		out = append(out, ULEB128(uint32(i))...)
	}
	return out
}

func (b *Builder) memorySection() []byte {
	out := []byte{0x01, 0x00}
	return append(out, ULEB128(b.memoryPages)...)
}

// globalSection defines the heap pointer as mutable i32 global 0.
func (b *Builder) globalSection() []byte {
	out := []byte{0x01, ValType(api.ValueTypeI32), 0x01, 0x41}
	out = append(out, SLEB128(int32(b.heapBase))...)
	return append(out, 0x0b)
}

func (b *Builder) exportSection() []byte {
	n := 1 + len(b.funcs)
	if b.allocExport != "" {
		n++
	}
	out := ULEB128(uint32(n))

	out = append(out, name(b.memoryExport)...)
	out = append(out, 0x02, 0x00)

	imported := uint32(len(b.funcs))
	for i, f := range b.funcs {
		out = append(out, name(f.export)...)
		out = append(out, 0x00)
		out = append(out, ULEB128(imported+uint32(i))...)
	}
	if b.allocExport != "" {
		out = append(out, name(b.allocExport)...)
		out = append(out, 0x00)
		out = append(out, ULEB128(2*imported)...)
	}
	return out
}

func (b *Builder) codeSection() []byte {
	out := ULEB128(uint32(b.numFuncs()))
	for i, f := range b.funcs {
		body := []byte{0x00}
		for p := range f.params {
			body = append(body, 0x20)
			body = append(body, ULEB128(uint32(p))...)
		}
		body = append(body, 0x10)
		body = append(body, ULEB128(uint32(i))...)
		body = append(body, 0x0b)
		out = append(out, ULEB128(uint32(len(body)))...)
		out = append(out, body...)
	}
	if b.allocExport != "" {
		body := allocBody()
		out = append(out, ULEB128(uint32(len(body)))...)
		out = append(out, body...)
	}
	return out
}

// allocBody rounds the heap pointer up to align, bumps it by size and
// returns the rounded pointer:
//
//	ptr = (heap + align - 1) & -align
//	heap = ptr + size
func allocBody() []byte {
	return []byte{
		0x01, 0x01, 0x7f, // one i32 local
		0x23, 0x00, // global.get heap
		0x20, 0x01, // local.get align
		0x6a,       // i32.add
		0x41, 0x01, // i32.const 1
		0x6b,       // i32.sub
		0x41, 0x00, // i32.const 0
		0x20, 0x01, // local.get align
		0x6b,       // i32.sub
		0x71,       // i32.and
		0x22, 0x02, // local.tee ptr
		0x20, 0x00, // local.get size
		0x6a,       // i32.add
		0x24, 0x00, // global.set heap
		0x20, 0x02, // local.get ptr
		0x0b,
	}
}
