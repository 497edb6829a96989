package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/handle"
	"github.com/wippyai/nativebind/signal"
	"github.com/wippyai/nativebind/variant"
)

// Native is implemented by *Object and by every wrapper type embedding it.
type Native interface {
	Native() *Object
}

// Object is the managed wrapper of a native object. There is at most one
// wrapper per live native pointer.
//
// Methods other than Release are safe for concurrent use; Release must not
// race with calls on the same wrapper.
type Object struct {
	rt        *Runtime
	self      any
	class     string
	cleanup   goruntime.Cleanup
	ptr       uint64
	handle    handle.Handle
	ownership handle.Ownership
	released  atomic.Bool
	selfMu    sync.RWMutex
}

type cleanupArg struct {
	rt  *Runtime
	wp  weak.Pointer[Object]
	h   handle.Handle
	ptr uint64
}

// setCleanup drops the engine reference of a Shared wrapper once the
// wrapper is unreachable.
func (o *Object) setCleanup() {
	arg := cleanupArg{rt: o.rt, wp: weak.Make(o), h: o.handle, ptr: o.ptr}
	o.cleanup = goruntime.AddCleanup(o, collected, arg)
}

func collected(a cleanupArg) {
	// Wrap or Close may have reclaimed the slot, possibly for a new
	// wrapper of the same object; Evict leaves it alone then.
	info, d, ok := a.rt.handles.Evict(a.h, a.wp)
	if !ok {
		return
	}
	_ = a.rt.settle(context.Background(), a.ptr, info.Freed, d)
	a.rt.logger.Debug("collected wrapper released",
		zap.Uint64("ptr", a.ptr),
		zap.Stringer("disposition", d))
}

// detach marks the wrapper released and cancels its cleanup.
func (o *Object) detach() {
	o.released.Store(true)
	if o.ownership == handle.Shared {
		o.cleanup.Stop()
	}
}

// Native returns o.
func (o *Object) Native() *Object { return o }

// NativePtr implements variant.ObjectRef. It does not check liveness; a
// nil wrapper yields 0.
func (o *Object) NativePtr() uint64 {
	if o == nil {
		return 0
	}
	return o.ptr
}

// Class returns the native class the wrapper was created for.
func (o *Object) Class() string { return o.class }

func (o *Object) Handle() handle.Handle { return o.handle }

func (o *Object) Ownership() handle.Ownership { return o.ownership }

func (o *Object) Runtime() *Runtime { return o.rt }

// Self returns the managed value consulted by virtual dispatch.
func (o *Object) Self() any {
	o.selfMu.RLock()
	defer o.selfMu.RUnlock()
	return o.self
}

// SetSelf replaces the managed value consulted by virtual dispatch.
func (o *Object) SetSelf(self any) {
	o.selfMu.Lock()
	o.self = self
	o.selfMu.Unlock()
}

// IsA reports whether the wrapper's class is class or derives from it.
func (o *Object) IsA(class string) bool {
	c, ok := o.rt.db.Class(o.class)
	return ok && c.IsA(class)
}

func (o *Object) resolve() (uint64, error) {
	if o == nil {
		return 0, errors.NilPointer(errors.PhaseHandle, nil, "*runtime.Object")
	}
	if o.released.Load() {
		return 0, errors.FreedHandle(o.ptr, o.class)
	}
	ptr, err := o.rt.handles.Resolve(o.handle)
	if err != nil {
		return 0, err
	}
	if ptr != o.ptr {
		return 0, errors.FreedHandle(o.ptr, o.class)
	}
	return ptr, nil
}

// Valid reports whether the native object can still be used.
func (o *Object) Valid() bool {
	_, err := o.resolve()
	return err == nil
}

// Ptr returns the native pointer. It panics with a freed_handle error when
// the wrapper was released or the engine freed the object; use Valid or
// the error-returning calls to avoid the panic.
func (o *Object) Ptr() uint64 {
	ptr, err := o.resolve()
	if err != nil {
		panic(err)
	}
	return ptr
}

// Retain adds a managed reference to a Shared wrapper. Each Retain needs a
// matching Release.
func (o *Object) Retain() error {
	if _, err := o.resolve(); err != nil {
		return err
	}
	if o.ownership != handle.Shared {
		return errors.New(errors.PhaseHandle, errors.KindUnsupported).
			Path(o.class).Detail("retain on %s object", o.ownership).Build()
	}
	return o.rt.handles.Retain(o.handle)
}

// Release drops one managed reference. When the last one goes an Owned
// object is destroyed and a Shared object loses its engine reference;
// Borrowed objects are left to the engine.
func (o *Object) Release(ctx context.Context) error {
	if o == nil {
		return nil
	}
	if o.released.Load() {
		return errors.FreedHandle(o.ptr, o.class)
	}
	if v, ok := o.rt.handles.Value(o.handle); !ok || objectOf(v) != o {
		o.detach()
		return errors.FreedHandle(o.ptr, o.class)
	}
	d, err := o.rt.release(ctx, o.handle, o.ptr, false)
	if d != handle.Keep {
		o.detach()
	}
	return err
}

// Call invokes a native method by name. Arguments are converted and
// checked against the declared parameter types.
func (o *Object) Call(ctx context.Context, method string, args ...any) (variant.Variant, error) {
	c, ok := o.rt.db.Class(o.class)
	if !ok {
		return variant.Variant{}, errors.NotFound(errors.PhaseResolve, "class", o.class)
	}
	m, ok := c.Method(method)
	if !ok {
		return variant.Variant{}, errors.NotFound(errors.PhaseResolve, "method", o.class+"."+method)
	}
	v, _, err := o.invoke(ctx, Token(m), args)
	return v, err
}

// invoke marshals args for the method tok names and runs its bind.
func (o *Object) invoke(ctx context.Context, tok bind.Token, args []any) (variant.Variant, *classdb.Method, error) {
	self, err := o.resolve()
	if err != nil {
		return variant.Variant{}, nil, err
	}
	m, err := o.rt.method(o.class, tok)
	if err != nil {
		return variant.Variant{}, nil, err
	}
	if len(args) != m.Arity() {
		return variant.Variant{}, m, errors.ArityMismatch(errors.PhaseEncode, m.Class+"."+m.Name, m.Arity(), len(args))
	}
	vs := make([]variant.Variant, len(args))
	for i, a := range args {
		if vs[i], err = o.rt.marshal(m, i, a); err != nil {
			return variant.Variant{}, m, err
		}
	}

	target, err := o.rt.cache.Resolve(ctx, tok)
	if err != nil {
		return variant.Variant{}, m, err
	}
	ret, err := target.Call(ctx, self, vs)
	return ret, m, err
}

// method finds the declaration tok names and checks that instances of
// class may call it.
func (rt *Runtime) method(class string, tok bind.Token) (*classdb.Method, error) {
	decl, ok := rt.db.Class(tok.Class)
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "class", tok.Class)
	}
	m, ok := decl.Method(tok.Member)
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "method", tok.String())
	}
	if c, ok := rt.db.Class(class); !ok || !c.IsA(tok.Class) {
		return nil, errors.TypeMismatch(errors.PhaseEncode, []string{tok.String(), "self"}, class, tok.Class)
	}
	return m, nil
}

// marshal converts argument i of m.
func (rt *Runtime) marshal(m *classdb.Method, i int, a any) (variant.Variant, error) {
	p := m.Args[i]
	path := []string{m.Class + "." + m.Name, argName(p, i)}

	if n, ok := a.(Native); ok {
		obj := n.Native()
		if obj == nil {
			return variant.NewObject(0), nil
		}
		if p.Type != variant.Object {
			return variant.Variant{}, errors.TypeMismatch(errors.PhaseEncode, path, obj.class, p.TypeName())
		}
		if p.Class != "" && !obj.IsA(p.Class) {
			return variant.Variant{}, errors.TypeMismatch(errors.PhaseEncode, path, obj.class, p.Class)
		}
		ptr, err := obj.resolve()
		if err != nil {
			return variant.Variant{}, err
		}
		return variant.NewObject(ptr), nil
	}

	v, err := variant.From(a)
	if err == nil {
		v, err = variant.Coerce(v, p.Type)
	}
	if err != nil {
		return variant.Variant{}, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			Path(path...).GoType(fmt.Sprintf("%T", a)).NativeType(p.TypeName()).Cause(err).Build()
	}
	if v.IsNil() && p.Type == variant.Object {
		v = variant.NewObject(0)
	}
	return v, nil
}

func argName(p classdb.Arg, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return "arg" + strconv.Itoa(i)
}

// Connect subscribes fn to signal. The arity comes from the signal's
// declaration.
func (o *Object) Connect(ctx context.Context, name string, fn signal.Handler) (signal.Connection, error) {
	ptr, s, err := o.signal(name)
	if err != nil {
		return signal.Connection{}, err
	}
	return o.rt.hub.Connect(ctx, ptr, name, s.Arity(), fn)
}

// Disconnect removes a connection made with Connect.
func (o *Object) Disconnect(ctx context.Context, c signal.Connection) error {
	return o.rt.hub.Disconnect(ctx, c)
}

// SignalTarget checks that the object declares signal name and returns the
// hub and pointer to subscribe with. Generated On<Signal> helpers use it.
func (o *Object) SignalTarget(name string) (*signal.Hub, uint64, error) {
	ptr, _, err := o.signal(name)
	if err != nil {
		return nil, 0, err
	}
	return o.rt.hub, ptr, nil
}

func (o *Object) signal(name string) (uint64, *classdb.Signal, error) {
	ptr, err := o.resolve()
	if err != nil {
		return 0, nil, err
	}
	c, ok := o.rt.db.Class(o.class)
	if !ok {
		return 0, nil, errors.NotFound(errors.PhaseSignal, "class", o.class)
	}
	s, ok := c.Signal(name)
	if !ok {
		return 0, nil, errors.NotFound(errors.PhaseSignal, "signal", o.class+"."+name)
	}
	return ptr, s, nil
}

func (o *Object) String() string {
	if o == nil {
		return "<nil>"
	}
	state := o.ownership.String()
	if !o.Valid() {
		state = "freed"
	}
	return fmt.Sprintf("%s(0x%x, %s)", o.class, o.ptr, state)
}
