// Package local is an in-process engine whose native classes are Go
// functions. It implements engine.Backend with the same contract as the
// wasm and dl backends, so bindings can be exercised without a native
// build.
//
//	eng := local.New("4.2.0")
//	eng.MustDefine(local.ClassImpl{
//	    Name: "Counter",
//	    Methods: map[string]local.MethodImpl{
//	        "increment": {Arity: 0, Fn: func(ctx context.Context, o *local.Object, args []variant.Variant) (variant.Variant, error) {
//	            n, _ := o.Get("n").AsInt()
//	            o.Set("n", variant.NewInt(n+1))
//	            return variant.NewInt(n + 1), nil
//	        }},
//	    },
//	})
package local

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// Method implements a native member.
type Method func(ctx context.Context, obj *Object, args []variant.Variant) (variant.Variant, error)

// MethodImpl is a native member. A zero Hash accepts any token hash;
// a negative Arity skips the argument count check.
type MethodImpl struct {
	Fn    Method
	Hash  uint64
	Arity int
}

// ClassImpl describes a native class.
type ClassImpl struct {
	Init       func(obj *Object)
	Methods    map[string]MethodImpl
	Name       string
	Parent     string
	Signals    []string
	RefCounted bool
	Abstract   bool
}

type class struct {
	ClassImpl
	parent  *class
	signals map[string]bool
}

func (c *class) method(name string) (MethodImpl, string, bool) {
	for k := c; k != nil; k = k.parent {
		if m, ok := k.Methods[name]; ok {
			return m, k.Name, true
		}
	}
	return MethodImpl{}, "", false
}

func (c *class) hasSignal(name string) bool {
	for k := c; k != nil; k = k.parent {
		if k.signals[name] {
			return true
		}
	}
	return false
}

func (c *class) isA(name string) bool {
	for k := c; k != nil; k = k.parent {
		if k.Name == name {
			return true
		}
	}
	return false
}

func (c *class) refCounted() bool {
	for k := c; k != nil; k = k.parent {
		if k.RefCounted {
			return true
		}
	}
	return false
}

// Engine is an in-process native engine. It is safe for concurrent use.
type Engine struct {
	callbacks engine.Callbacks
	logger    *zap.Logger
	classes   map[string]*class
	objects   map[uint64]*Object
	version   string
	next      uint64
	mu        sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func New(version string, opts ...Option) *Engine {
	e := &Engine{
		callbacks: engine.NopCallbacks{},
		logger:    engine.Logger(),
		classes:   make(map[string]*class),
		objects:   make(map[uint64]*Object),
		version:   version,
		next:      0x1000,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Define registers a class. Parents must be defined first.
func (e *Engine) Define(impl ClassImpl) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if impl.Name == "" {
		return errors.InvalidInput(errors.PhaseLoad, "class without a name")
	}
	if _, dup := e.classes[impl.Name]; dup {
		return errors.Duplicate(errors.PhaseLoad, "class", impl.Name)
	}
	c := &class{ClassImpl: impl, signals: make(map[string]bool, len(impl.Signals))}
	if impl.Parent != "" {
		p, ok := e.classes[impl.Parent]
		if !ok {
			return errors.NotFound(errors.PhaseLoad, "parent class", impl.Parent)
		}
		c.parent = p
	}
	for _, s := range impl.Signals {
		c.signals[s] = true
	}
	e.classes[impl.Name] = c
	return nil
}

// MustDefine is Define that panics on error.
func (e *Engine) MustDefine(impls ...ClassImpl) {
	for _, impl := range impls {
		if err := e.Define(impl); err != nil {
			panic(err)
		}
	}
}

func (e *Engine) Version() string { return e.version }

func (e *Engine) SetCallbacks(cb engine.Callbacks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cb == nil {
		cb = engine.NopCallbacks{}
	}
	e.callbacks = cb
}

func (e *Engine) cb() engine.Callbacks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.callbacks
}

// Resolve implements bind.Resolver.
func (e *Engine) Resolve(ctx context.Context, tok bind.Token) (bind.Target, error) {
	e.mu.RLock()
	c, ok := e.classes[tok.Class]
	e.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "class", tok.Class)
	}
	m, owner, ok := c.method(tok.Member)
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "method", tok.Class+"."+tok.Member)
	}
	if m.Hash != 0 && m.Hash != tok.Hash {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Path(tok.Class, tok.Member).Value(tok.Hash).
			Detail("hash %#x does not match engine hash %#x", tok.Hash, m.Hash).Build()
	}

	member := owner + "." + tok.Member
	return bind.TargetFunc(func(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error) {
		obj, ok := e.Object(self)
		if !ok {
			return variant.Variant{}, errors.FreedHandle(self, tok.Class)
		}
		if !obj.class.isA(tok.Class) {
			return variant.Variant{}, errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
				Path(member).Detail("object is a %s, not a %s", obj.class.Name, tok.Class).Build()
		}
		if m.Arity >= 0 && len(args) != m.Arity {
			return variant.Variant{}, errors.ArityMismatch(errors.PhaseRuntime, member, m.Arity, len(args))
		}
		return m.Fn(ctx, obj, args)
	}), nil
}

// Construct implements engine.Backend. Reference-counted objects start with
// one reference owned by the caller.
func (e *Engine) Construct(ctx context.Context, className string) (uint64, bool, error) {
	e.mu.Lock()
	c, ok := e.classes[className]
	if !ok {
		e.mu.Unlock()
		return 0, false, errors.NotFound(errors.PhaseRuntime, "class", className)
	}
	if c.Abstract {
		e.mu.Unlock()
		return 0, false, errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Path(className).Detail("class is not instantiable").Build()
	}
	ptr := e.next
	e.next += 0x10
	obj := &Object{
		eng:       e,
		ptr:       ptr,
		class:     c,
		connected: make(map[string]int),
		fields:    make(map[string]variant.Variant),
	}
	rc := c.refCounted()
	if rc {
		obj.refs = 1
	}
	e.objects[ptr] = obj
	e.mu.Unlock()

	// Init runs from most basic to most derived.
	var chain []*class
	for k := c; k != nil; k = k.parent {
		chain = append(chain, k)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Init != nil {
			chain[i].Init(obj)
		}
	}
	e.logger.Debug("object constructed", zap.String("class", className), zap.Uint64("ptr", ptr))
	return ptr, rc, nil
}

func (e *Engine) Reference(ctx context.Context, ptr uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[ptr]
	if !ok {
		return errors.FreedHandle(ptr, "")
	}
	if !obj.class.refCounted() {
		return errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Path(obj.class.Name).Detail("object is not reference counted").Build()
	}
	obj.refs++
	return nil
}

func (e *Engine) Unreference(ctx context.Context, ptr uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[ptr]
	if !ok {
		return false, errors.FreedHandle(ptr, "")
	}
	if !obj.class.refCounted() {
		return false, errors.New(errors.PhaseRuntime, errors.KindUnsupported).
			Path(obj.class.Name).Detail("object is not reference counted").Build()
	}
	obj.refs--
	if obj.refs > 0 {
		return false, nil
	}
	delete(e.objects, ptr)
	return true, nil
}

func (e *Engine) Destroy(ctx context.Context, ptr uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.objects[ptr]; !ok {
		return errors.FreedHandle(ptr, "")
	}
	delete(e.objects, ptr)
	return nil
}

// Free deletes ptr on the engine side and reports it to the managed side,
// as an engine does when it frees an object on its own.
func (e *Engine) Free(ctx context.Context, ptr uint64) bool {
	e.mu.Lock()
	_, ok := e.objects[ptr]
	delete(e.objects, ptr)
	e.mu.Unlock()
	if ok {
		e.cb().ObjectFreed(ctx, ptr)
	}
	return ok
}

// ConnectSignal implements signal.Mirror.
func (e *Engine) ConnectSignal(ctx context.Context, ptr uint64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[ptr]
	if !ok {
		return errors.FreedHandle(ptr, "")
	}
	if !obj.class.hasSignal(name) {
		return errors.NotFound(errors.PhaseSignal, "signal", obj.class.Name+"."+name)
	}
	obj.connected[name]++
	return nil
}

// DisconnectSignal implements signal.Mirror.
func (e *Engine) DisconnectSignal(ctx context.Context, ptr uint64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[ptr]
	if !ok {
		return errors.FreedHandle(ptr, "")
	}
	if obj.connected[name] == 0 {
		return errors.NotFound(errors.PhaseSignal, "connection", name)
	}
	obj.connected[name]--
	return nil
}

// Alive implements engine.LivenessChecker.
func (e *Engine) Alive(ptr uint64) bool {
	_, ok := e.Object(ptr)
	return ok
}

// Object returns the live object at ptr.
func (e *Engine) Object(ptr uint64) (*Object, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	obj, ok := e.objects[ptr]
	return obj, ok
}

// Len returns the number of live objects.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.objects)
}

// Classes returns the defined class names.
func (e *Engine) Classes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.classes))
	for name := range e.classes {
		out = append(out, name)
	}
	return out
}

// Close frees every object without notifying the managed side.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects = make(map[uint64]*Object)
	e.callbacks = engine.NopCallbacks{}
	return nil
}

var (
	_ engine.Backend         = (*Engine)(nil)
	_ engine.LivenessChecker = (*Engine)(nil)
)
