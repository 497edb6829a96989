package variant

import (
	"sync"

	"github.com/wippyai/nativebind"
)

type Memory = nativebind.Memory
type Allocator = nativebind.Allocator

// Allocation is one block handed out by an Allocator during an encode.
type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// Allocations records the blocks allocated for one native call so they can
// be freed once the call returns.
type Allocations struct {
	list []Allocation
}

var allocationsPool = sync.Pool{
	New: func() any {
		return &Allocations{list: make([]Allocation, 0, 8)}
	},
}

func NewAllocations() *Allocations {
	return allocationsPool.Get().(*Allocations)
}

const maxPooledAllocations = 128

// Release returns the list to the pool. The list must not be used afterwards.
func (a *Allocations) Release() {
	if cap(a.list) > maxPooledAllocations {
		return
	}
	a.list = a.list[:0]
	allocationsPool.Put(a)
}

func (a *Allocations) Add(ptr, size, align uint32) {
	a.list = append(a.list, Allocation{Ptr: ptr, Size: size, Align: align})
}

// Free frees every recorded block in reverse allocation order.
func (a *Allocations) Free(alloc Allocator) {
	if alloc == nil {
		return
	}
	for i := len(a.list) - 1; i >= 0; i-- {
		if blk := a.list[i]; blk.Ptr != 0 {
			alloc.Free(blk.Ptr, blk.Size, blk.Align)
		}
	}
	a.list = a.list[:0]
}

func (a *Allocations) FreeAndRelease(alloc Allocator) {
	a.Free(alloc)
	a.Release()
}

func (a *Allocations) Len() int {
	return len(a.list)
}

// Blocks returns a copy of the recorded allocations.
func (a *Allocations) Blocks() []Allocation {
	return append([]Allocation(nil), a.list...)
}
