package wasm

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/errors"
)

// Memory adapts a wazero memory to nativebind.Memory.
type Memory struct {
	mem api.Memory
}

var (
	_ nativebind.Memory      = (*Memory)(nil)
	_ nativebind.MemorySizer = (*Memory)(nil)
)

// NewMemory wraps mem.
func NewMemory(mem api.Memory) *Memory {
	return &Memory{mem: mem}
}

func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

func outOfBounds(offset, length uint32, size uint32) error {
	return errors.OutOfBounds(errors.PhaseRuntime, nil, int(offset)+int(length), int(size))
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds(offset, length, m.mem.Size())
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return outOfBounds(offset, uint32(len(data)), m.mem.Size())
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, outOfBounds(offset, 1, m.mem.Size())
	}
	return v, nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, outOfBounds(offset, 2, m.mem.Size())
	}
	return v, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds(offset, 4, m.mem.Size())
	}
	return v, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, outOfBounds(offset, 8, m.mem.Size())
	}
	return v, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if !m.mem.WriteByte(offset, value) {
		return outOfBounds(offset, 1, m.mem.Size())
	}
	return nil
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	if !m.mem.WriteUint16Le(offset, value) {
		return outOfBounds(offset, 2, m.mem.Size())
	}
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return outOfBounds(offset, 4, m.mem.Size())
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return outOfBounds(offset, 8, m.mem.Size())
	}
	return nil
}

// allocator calls the guest's nb_alloc and nb_free exports. freeFn may be
// nil, in which case Free does nothing.
type allocator struct {
	ctx      context.Context
	allocFn  api.Function
	freeFn   api.Function
	logger   *zap.Logger
	stackBuf [3]uint64
	mu       sync.Mutex
}

var _ nativebind.Allocator = (*allocator)(nil)

// withContext returns an allocator bound to ctx sharing the guest exports.
func (a *allocator) withContext(ctx context.Context) *allocator {
	return &allocator{ctx: ctx, allocFn: a.allocFn, freeFn: a.freeFn, logger: a.logger}
}

func (a *allocator) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, errors.NotInitialized(errors.PhaseRuntime, "nb_alloc")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stackBuf[0] = uint64(size)
	a.stackBuf[1] = uint64(align)
	if err := a.allocFn.CallWithStack(a.context(), a.stackBuf[:2]); err != nil {
		return 0, errors.Wrap(errors.PhaseRuntime, errors.KindAllocation, err, "nb_alloc trapped")
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 && size != 0 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, align)
	}
	return ptr, nil
}

func (a *allocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	a.stackBuf[2] = uint64(align)
	if err := a.freeFn.CallWithStack(a.context(), a.stackBuf[:3]); err != nil {
		a.log().Warn("nb_free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

func (a *allocator) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	return engine.Logger()
}
