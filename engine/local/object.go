package local

import (
	"context"
	"sync"

	"github.com/wippyai/nativebind/variant"
)

// Object is a native object of the local engine.
type Object struct {
	eng       *Engine
	class     *class
	connected map[string]int
	fields    map[string]variant.Variant
	ptr       uint64
	refs      int32
	mu        sync.Mutex
}

func (o *Object) Ptr() uint64 { return o.ptr }

func (o *Object) Class() string { return o.class.Name }

// Refs returns the engine reference count.
func (o *Object) Refs() int32 {
	o.eng.mu.RLock()
	defer o.eng.mu.RUnlock()
	return o.refs
}

// Get returns a field of the native object's state.
func (o *Object) Get(name string) variant.Variant {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fields[name]
}

// Set stores a field of the native object's state.
func (o *Object) Set(name string, v variant.Variant) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[name] = v
}

// Connected reports how many times the managed side connected signal.
func (o *Object) Connected(signal string) int {
	o.eng.mu.RLock()
	defer o.eng.mu.RUnlock()
	return o.connected[signal]
}

// CallVirtual asks the managed side to run member, as the engine does when
// it reaches an overridable member.
func (o *Object) CallVirtual(ctx context.Context, member string, args ...variant.Variant) (variant.Variant, bool, error) {
	return o.eng.cb().CallVirtual(ctx, o.ptr, member, args)
}

// Emit fires signal. Emissions reach the managed side only while it has
// the signal connected.
func (o *Object) Emit(ctx context.Context, signal string, args ...variant.Variant) error {
	if o.Connected(signal) == 0 {
		return nil
	}
	return o.eng.cb().EmitSignal(ctx, o.ptr, signal, args)
}
