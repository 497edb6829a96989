//go:build darwin || freebsd || linux

package dl

import (
	"context"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// Callback results.
const (
	cbNotHandled uintptr = 0
	cbHandled    uintptr = 1
	cbError      uintptr = 2
)

// purego callbacks cannot be released, so the three trampolines are created
// once per process and route by userdata.
var (
	registryMu sync.RWMutex
	registry   = map[uintptr]*Engine{}
	lastID     uintptr

	trampolineOnce sync.Once
	cbCallVirtual  uintptr
	cbEmitSignal   uintptr
	cbObjectFreed  uintptr
)

func register(e *Engine) uintptr {
	registryMu.Lock()
	defer registryMu.Unlock()
	lastID++
	registry[lastID] = e
	return lastID
}

func unregister(id uintptr) {
	registryMu.Lock()
	delete(registry, id)
	registryMu.Unlock()
}

func lookup(id uintptr) (*Engine, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[id]
	return e, ok
}

func trampolines() (callVirtual, emitSignal, objectFreed uintptr) {
	trampolineOnce.Do(func() {
		cbCallVirtual = purego.NewCallback(callVirtualTrampoline)
		cbEmitSignal = purego.NewCallback(emitSignalTrampoline)
		cbObjectFreed = purego.NewCallback(objectFreedTrampoline)
	})
	return cbCallVirtual, cbEmitSignal, cbObjectFreed
}

func callVirtualTrampoline(userdata, self, class, member, args, argc, ret uintptr) uintptr {
	e, ok := lookup(userdata)
	if !ok {
		return cbError
	}
	return e.callVirtual(context.Background(), uint64(self), goString(class), goString(member), words(args, argc), ret)
}

func emitSignalTrampoline(userdata, self, class, signal, args, argc uintptr) uintptr {
	e, ok := lookup(userdata)
	if !ok {
		return cbError
	}
	return e.emitSignal(context.Background(), uint64(self), goString(class), goString(signal), words(args, argc))
}

func objectFreedTrampoline(userdata, self uintptr) {
	if e, ok := lookup(userdata); ok {
		e.callbacks().ObjectFreed(context.Background(), uint64(self))
	}
}

func words(p, n uintptr) []int64 {
	if p == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(p)), n)
}

func (e *Engine) callVirtual(ctx context.Context, self uint64, class, member string, raw []int64, ret uintptr) uintptr {
	var params []classdb.Arg
	var result classdb.Arg
	if c, ok := e.db.Class(class); ok {
		if m, ok := c.Method(member); ok {
			params, result = m.Args, m.Return
		}
	}
	args, err := decodeWords(params, raw)
	if err != nil {
		e.callbackFailed(member, self, err)
		return cbError
	}

	v, handled, err := e.callbacks().CallVirtual(ctx, self, member, args)
	if err != nil {
		e.callbackFailed(member, self, err)
		return cbError
	}
	if !handled {
		return cbNotHandled
	}
	if ret != 0 && result.Type != variant.Nil {
		v, err = variant.Coerce(v, result.Type)
		if err == nil && v.Type() == variant.String {
			err = errors.Unsupported(errors.PhaseDispatch, "String results cannot be returned to the library")
		}
		if err != nil {
			e.callbackFailed(member, self, err)
			return cbError
		}
		w, _, err := toWord(v)
		if err != nil {
			e.callbackFailed(member, self, err)
			return cbError
		}
		*(*int64)(unsafe.Pointer(ret)) = int64(w)
	}
	return cbHandled
}

func (e *Engine) emitSignal(ctx context.Context, self uint64, class, signal string, raw []int64) uintptr {
	var params []classdb.Arg
	if c, ok := e.db.Class(class); ok {
		if s, ok := c.Signal(signal); ok {
			params = s.Args
		}
	}
	args, err := decodeWords(params, raw)
	if err == nil {
		err = e.callbacks().EmitSignal(ctx, self, signal, args)
	}
	if err != nil {
		e.callbackFailed(signal, self, err)
		return cbError
	}
	return cbNotHandled
}

// decodeWords reads callback arguments using the declared parameter types.
// Without a declaration every word is an int.
func decodeWords(params []classdb.Arg, raw []int64) ([]variant.Variant, error) {
	if params != nil && len(params) != len(raw) {
		return nil, errors.ArityMismatch(errors.PhaseHost, "callback", len(params), len(raw))
	}
	out := make([]variant.Variant, len(raw))
	for i, w := range raw {
		t := variant.Int
		if params != nil {
			t = params[i].Type
		}
		if !wordType(t) {
			return nil, errors.Unsupported(errors.PhaseHost, t.String()+" cannot cross the C ABI")
		}
		out[i] = fromWord(uintptr(w), t)
	}
	return out, nil
}

func (e *Engine) callbackFailed(member string, self uint64, err error) {
	e.logger.Warn("library callback failed",
		zap.String("member", member),
		zap.Uint64("self", self),
		zap.Error(err))
}
