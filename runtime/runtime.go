package runtime

import (
	"context"
	"sync"
	"weak"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/dispatch"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/handle"
	"github.com/wippyai/nativebind/signal"
	"github.com/wippyai/nativebind/variant"
)

// Runtime binds managed wrappers to the objects of one engine.
type Runtime struct {
	backend    engine.Backend
	db         *classdb.DB
	handles    *handle.Table
	cache      *bind.Cache
	dispatcher *dispatch.Dispatcher
	hub        *signal.Hub
	logger     *zap.Logger
	cfg        Config
	wrapMu     sync.Mutex
	closeMu    sync.Mutex
	closed     bool
}

var _ engine.Callbacks = (*Runtime)(nil)

// New checks the engine against db, installs the runtime as the engine's
// callbacks and, with Config.Preload, resolves every method bind.
func New(ctx context.Context, backend engine.Backend, db *classdb.DB, opts ...Option) (*Runtime, error) {
	if backend == nil {
		return nil, errors.NilPointer(errors.PhaseRuntime, nil, "engine.Backend")
	}
	if db == nil {
		return nil, errors.NilPointer(errors.PhaseRuntime, nil, "*classdb.DB")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	if err := db.CheckCompatible(backend.Version()); err != nil {
		if o.cfg.StrictVersion {
			return nil, err
		}
		o.logger.Warn("engine version not compatible with API description",
			zap.String("engine", backend.Version()),
			zap.String("api", db.Version),
			zap.Error(err))
	}

	var tableOpts []handle.Option
	if checker, ok := backend.(engine.LivenessChecker); ok && o.cfg.DebugHandles {
		tableOpts = append(tableOpts, handle.WithChecker(checker))
	}

	rt := &Runtime{
		backend:    backend,
		db:         db,
		handles:    handle.NewTable(tableOpts...),
		cache:      bind.NewCache(backend, bind.WithLogger(o.logger)),
		dispatcher: dispatch.New(db, dispatch.WithLogger(o.logger)),
		hub:        signal.NewHub(backend, signal.WithLogger(o.logger)),
		logger:     o.logger,
		cfg:        o.cfg,
	}
	backend.SetCallbacks(rt)

	if o.cfg.Preload {
		if err := rt.preload(ctx); err != nil {
			backend.SetCallbacks(nil)
			return nil, err
		}
	}

	rt.logger.Debug("runtime started",
		zap.String("engine", backend.Version()),
		zap.Int("classes", db.Len()),
		zap.Bool("preload", o.cfg.Preload))
	return rt, nil
}

// preload resolves every non-virtual method of every class.
func (rt *Runtime) preload(ctx context.Context) error {
	var toks []bind.Token
	for _, c := range rt.db.Classes() {
		for _, m := range c.OwnMethods() {
			if !m.Virtual {
				toks = append(toks, Token(m))
			}
		}
	}
	_, err := rt.cache.ResolveClass(ctx, toks)
	return err
}

// Token returns the bind token of m.
func Token(m *classdb.Method) bind.Token {
	return bind.Token{Class: m.Class, Member: m.Name, Hash: m.Hash}
}

// DB returns the API description.
func (rt *Runtime) DB() *classdb.DB { return rt.db }

// Backend returns the engine.
func (rt *Runtime) Backend() engine.Backend { return rt.backend }

// Dispatcher returns the virtual dispatch table. Wrapper packages register
// their overrides here.
func (rt *Runtime) Dispatcher() *dispatch.Dispatcher { return rt.dispatcher }

// Hub returns the signal hub.
func (rt *Runtime) Hub() *signal.Hub { return rt.hub }

// Cache returns the method bind cache.
func (rt *Runtime) Cache() *bind.Cache { return rt.cache }

// Handles returns the handle table.
func (rt *Runtime) Handles() *handle.Table { return rt.handles }

// New constructs a native instance of class and wraps it. self is the
// managed value consulted by virtual dispatch and may be nil.
// Reference-counted classes produce Shared wrappers, others Owned.
func (rt *Runtime) New(ctx context.Context, class string, self any) (*Object, error) {
	c, ok := rt.db.Class(class)
	if !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "class", class)
	}
	if !c.Instantiable {
		return nil, errors.Unsupported(errors.PhaseRuntime, "class "+class+" is not instantiable")
	}

	ptr, refCounted, err := rt.backend.Construct(ctx, class)
	if err != nil {
		if ptr != 0 {
			// Nothing will wrap it.
			if derr := rt.backend.Destroy(ctx, ptr); derr != nil {
				rt.logger.Warn("failed to destroy unconstructed object",
					zap.String("class", class), zap.Uint64("ptr", ptr), zap.Error(derr))
			}
		}
		return nil, err
	}
	own := handle.Owned
	if refCounted {
		own = handle.Shared
	}

	o, err := rt.attach(ptr, class, own, self)
	if err != nil {
		if refCounted {
			_, _ = rt.backend.Unreference(ctx, ptr)
		} else {
			_ = rt.backend.Destroy(ctx, ptr)
		}
		return nil, err
	}

	rt.logger.Debug("object constructed",
		zap.String("class", class),
		zap.Uint64("ptr", ptr),
		zap.Stringer("ownership", own))
	return o, nil
}

// Wrap returns the wrapper for an object the engine created. An existing
// wrapper of ptr is returned as is. Wrapping a Shared object takes an
// engine reference. A zero ptr yields a nil wrapper.
func (rt *Runtime) Wrap(ctx context.Context, ptr uint64, class string, own handle.Ownership) (*Object, error) {
	if ptr == 0 {
		return nil, nil
	}
	rt.wrapMu.Lock()
	defer rt.wrapMu.Unlock()

	adopt := false
	if h, ok := rt.handles.Lookup(ptr); ok {
		v, _ := rt.handles.Value(h)
		if o := objectOf(v); o != nil {
			return o, nil
		}
		// The previous wrapper was collected before its cleanup ran; the
		// new one takes over its engine reference. If the cleanup got there
		// first the reference is gone and a fresh one is taken below.
		if info, _, ok := rt.handles.Evict(h, v); ok && info.Ownership == handle.Shared {
			adopt, own = true, handle.Shared
		}
	}
	if _, ok := rt.db.Class(class); !ok {
		return nil, errors.NotFound(errors.PhaseRuntime, "class", class)
	}
	if own == handle.Shared && !adopt {
		if err := rt.backend.Reference(ctx, ptr); err != nil {
			return nil, err
		}
	}
	o, err := rt.attach(ptr, class, own, nil)
	if err != nil && own == handle.Shared {
		_, _ = rt.backend.Unreference(ctx, ptr)
	}
	return o, err
}

// WrapAs wraps ptr with the ownership the description implies for class:
// Shared for reference-counted classes, Borrowed otherwise.
func (rt *Runtime) WrapAs(ctx context.Context, ptr uint64, class string) (*Object, error) {
	return rt.Wrap(ctx, ptr, class, rt.ownershipFor(class))
}

func (rt *Runtime) ownershipFor(class string) handle.Ownership {
	c, ok := rt.db.Class(class)
	for ; ok && c != nil; c = c.Base() {
		if c.RefCounted {
			return handle.Shared
		}
	}
	return handle.Borrowed
}

// attach registers a wrapper for ptr. Shared wrappers are held weakly by
// the table and release their count when collected.
func (rt *Runtime) attach(ptr uint64, class string, own handle.Ownership, self any) (*Object, error) {
	o := &Object{rt: rt, class: class, ptr: ptr, ownership: own, self: self}
	var value any = o
	if own == handle.Shared {
		value = weak.Make(o)
	}
	h, err := rt.handles.Insert(ptr, class, own, value)
	if err != nil {
		return nil, err
	}
	o.handle = h
	if own == handle.Shared {
		o.setCleanup()
	}
	return o, nil
}

// lookup returns the live wrapper of ptr, if any.
func (rt *Runtime) lookup(ptr uint64) *Object {
	h, ok := rt.handles.Lookup(ptr)
	if !ok {
		return nil
	}
	v, ok := rt.handles.Value(h)
	if !ok {
		return nil
	}
	return objectOf(v)
}

func objectOf(v any) *Object {
	switch v := v.(type) {
	case *Object:
		return v
	case weak.Pointer[Object]:
		return v.Value()
	}
	return nil
}

// Lookup returns the wrapper of ptr if one exists.
func (rt *Runtime) Lookup(ptr uint64) (*Object, bool) {
	o := rt.lookup(ptr)
	return o, o != nil
}

// release drops one managed reference of h and performs the native action
// the table decides on. all drops every remaining reference.
func (rt *Runtime) release(ctx context.Context, h handle.Handle, ptr uint64, all bool) (handle.Disposition, error) {
	info, _ := rt.handles.Info(h)
	d, err := rt.handles.Release(h)
	for err == nil && all && d == handle.Keep {
		d, err = rt.handles.Release(h)
	}
	if err != nil {
		return d, err
	}
	if d == handle.Keep {
		return d, nil
	}
	return d, rt.settle(ctx, ptr, info.Freed, d)
}

// settle performs the native side of a release decided by the table.
func (rt *Runtime) settle(ctx context.Context, ptr uint64, freed bool, d handle.Disposition) error {
	// The engine still has the object, so it must stop forwarding the
	// signals this wrapper subscribed to.
	if !freed {
		if _, err := rt.hub.DisconnectObject(ctx, ptr); err != nil {
			rt.logger.Warn("signal disconnect on release failed",
				zap.Uint64("ptr", ptr),
				zap.Error(err))
		}
	}
	var err error
	switch d {
	case handle.Destroy:
		err = rt.backend.Destroy(ctx, ptr)
	case handle.Unreference:
		_, err = rt.backend.Unreference(ctx, ptr)
	}
	if err != nil {
		rt.logger.Warn("native release failed",
			zap.Uint64("ptr", ptr),
			zap.Stringer("disposition", d),
			zap.Error(err))
	}
	return err
}

// withHook makes Object variants decode to *Object wrappers in typed
// dispatch and signal helpers.
func (rt *Runtime) withHook(ctx context.Context) context.Context {
	return variant.WithHook(ctx, rt.decodeObject)
}

func (rt *Runtime) decodeObject(v variant.Variant, out any) (bool, error) {
	dst, ok := out.(**Object)
	if !ok {
		return false, nil
	}
	if v.IsNil() {
		*dst = nil
		return true, nil
	}
	ptr, err := v.AsObject()
	if err != nil {
		return true, err
	}
	if ptr == 0 {
		*dst = nil
		return true, nil
	}
	o := rt.lookup(ptr)
	if o == nil {
		return true, errors.New(errors.PhaseDecode, errors.KindNotFound).
			Value(ptr).Detail("native object 0x%x has no wrapper", ptr).Build()
	}
	*dst = o
	return true, nil
}

// wrapArgs wraps every Object argument declared in params so the decode
// hook can find it.
func (rt *Runtime) wrapArgs(ctx context.Context, params []classdb.Arg, args []variant.Variant) error {
	for i, p := range params {
		if i >= len(args) || p.Type != variant.Object || args[i].Type() != variant.Object {
			continue
		}
		ptr, _ := args[i].AsObject()
		class := p.Class
		if class == "" {
			class = rootClass(rt.db)
		}
		if _, err := rt.WrapAs(ctx, ptr, class); err != nil {
			return err
		}
	}
	return nil
}

func rootClass(db *classdb.DB) string {
	for _, c := range db.Classes() {
		if c.Parent == "" {
			return c.Name
		}
	}
	return ""
}

// CallVirtual implements engine.Callbacks. Pointers without a wrapper are
// not handled.
func (rt *Runtime) CallVirtual(ctx context.Context, ptr uint64, member string, args []variant.Variant) (variant.Variant, bool, error) {
	o := rt.lookup(ptr)
	if o == nil {
		return variant.Variant{}, false, nil
	}

	var ret classdb.Arg
	if c, ok := rt.db.Class(o.class); ok {
		if m, ok := c.Method(member); ok {
			if err := rt.wrapArgs(ctx, m.Args, args); err != nil {
				return variant.Variant{}, false, err
			}
			ret = m.Return
		}
	}

	res, err := rt.dispatcher.Dispatch(rt.withHook(ctx), o.class, o.Self(), member, args)
	if err != nil || !res.Handled {
		return res.Value, res.Handled, err
	}
	if ret.Type != variant.Nil {
		v, err := variant.Coerce(res.Value, ret.Type)
		if err != nil {
			return variant.Variant{}, true, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				Path(o.class, member, "result").Cause(err).Build()
		}
		return v, true, nil
	}
	return res.Value, true, nil
}

// EmitSignal implements engine.Callbacks.
func (rt *Runtime) EmitSignal(ctx context.Context, ptr uint64, name string, args []variant.Variant) error {
	if o := rt.lookup(ptr); o != nil {
		if c, ok := rt.db.Class(o.class); ok {
			if s, ok := c.Signal(name); ok {
				if err := rt.wrapArgs(ctx, s.Args, args); err != nil {
					return err
				}
			}
		}
	}
	return rt.hub.Emit(rt.withHook(ctx), ptr, name, args)
}

// ObjectFreed implements engine.Callbacks. Later use of the wrapper fails
// with freed_handle; borrowed wrappers are dropped at once.
func (rt *Runtime) ObjectFreed(ctx context.Context, ptr uint64) {
	rt.hub.DropObject(ptr)
	h, ok := rt.handles.MarkFreed(ptr)
	if !ok {
		return
	}
	info, ok := rt.handles.Info(h)
	if !ok {
		return
	}
	rt.logger.Debug("engine freed object",
		zap.String("class", info.Class),
		zap.Uint64("ptr", ptr))
	if info.Ownership == handle.Borrowed {
		if o := objectOf(info.Value); o != nil {
			o.released.Store(true)
		}
		_, _ = rt.handles.Release(h)
	}
}

// Close releases every wrapper and closes the engine.
func (rt *Runtime) Close(ctx context.Context) error {
	rt.closeMu.Lock()
	if rt.closed {
		rt.closeMu.Unlock()
		return nil
	}
	rt.closed = true
	rt.closeMu.Unlock()

	type pending struct {
		o   *Object
		h   handle.Handle
		ptr uint64
	}
	var all []pending
	rt.handles.Each(func(h handle.Handle, info handle.Info) bool {
		all = append(all, pending{o: objectOf(info.Value), h: h, ptr: info.Ptr})
		return true
	})
	for _, p := range all {
		if p.o != nil {
			p.o.detach()
		}
		_, _ = rt.release(ctx, p.h, p.ptr, true)
	}
	rt.handles.Close()

	rt.backend.SetCallbacks(nil)
	rt.logger.Debug("runtime closed", zap.Int("released", len(all)))
	return rt.backend.Close(ctx)
}
