//go:build darwin || freebsd || linux

package dl

import (
	"context"
	"fmt"
	goruntime "runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// maxWords is the most arguments SyscallN forwards, receiver included.
const maxWords = 15

// Config configures symbol lookup.
type Config struct {
	Logger *zap.Logger

	// Symbol maps a bind token to the exported function name.
	// Defaults to DefaultSymbol.
	Symbol func(tok bind.Token) string

	// Version is reported when the library does not export nb_version.
	Version string
}

// DefaultSymbol returns nb_<Class>_<member>_<hash>.
func DefaultSymbol(tok bind.Token) string {
	return fmt.Sprintf("nb_%s_%s_%016x", tok.Class, tok.Member, tok.Hash)
}

type lifecycle struct {
	construct    uintptr
	isRefCounted uintptr
	reference    uintptr
	unreference  uintptr
	destroy      uintptr
	connect      uintptr
	disconnect   uintptr
	alive        uintptr
}

// Engine is a native engine loaded from a shared library.
type Engine struct {
	db      *classdb.DB
	symbol  func(tok bind.Token) string
	logger  *zap.Logger
	cb      engine.Callbacks
	version string
	path    string
	fn      lifecycle
	lib     uintptr
	id      uintptr
	mu      sync.RWMutex
	closed  bool
}

var (
	_ engine.Backend         = (*Engine)(nil)
	_ engine.LivenessChecker = (*Engine)(nil)
)

// Open loads the library at path. Method signatures are taken from db.
func Open(path string, db *classdb.DB, cfg *Config) (*Engine, error) {
	if db == nil {
		return nil, errors.NilPointer(errors.PhaseLoad, nil, "*classdb.DB")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "dlopen "+path)
	}

	e := &Engine{
		db:      db,
		symbol:  cfg.Symbol,
		logger:  cfg.Logger,
		cb:      engine.NopCallbacks{},
		version: cfg.Version,
		path:    path,
		lib:     lib,
	}
	if e.symbol == nil {
		e.symbol = DefaultSymbol
	}
	if e.logger == nil {
		e.logger = engine.Logger()
	}

	e.fn = lifecycle{
		construct:    e.optional("nb_construct"),
		isRefCounted: e.optional("nb_is_refcounted"),
		reference:    e.optional("nb_reference"),
		unreference:  e.optional("nb_unreference"),
		destroy:      e.optional("nb_destroy"),
		connect:      e.optional("nb_connect"),
		disconnect:   e.optional("nb_disconnect"),
		alive:        e.optional("nb_is_alive"),
	}
	if fn := e.optional("nb_version"); fn != 0 {
		r1, _, _ := purego.SyscallN(fn)
		e.version = goString(r1)
	}
	if fn := e.optional("nb_init"); fn != 0 {
		e.id = register(e)
		cv, es, of := trampolines()
		purego.SyscallN(fn, e.id, cv, es, of)
	}

	e.logger.Debug("engine library loaded",
		zap.String("path", path),
		zap.String("version", e.version),
		zap.Bool("callbacks", e.id != 0))
	return e, nil
}

func (e *Engine) optional(name string) uintptr {
	fn, err := purego.Dlsym(e.lib, name)
	if err != nil {
		return 0
	}
	return fn
}

func (e *Engine) Version() string { return e.version }

// DB returns the API description used for signatures.
func (e *Engine) DB() *classdb.DB { return e.db }

func (e *Engine) SetCallbacks(cb engine.Callbacks) {
	if cb == nil {
		cb = engine.NopCallbacks{}
	}
	e.mu.Lock()
	e.cb = cb
	e.mu.Unlock()
}

func (e *Engine) callbacks() engine.Callbacks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cb
}

// Resolve finds the symbol for tok and checks that its signature can be
// passed through the C ABI.
func (e *Engine) Resolve(ctx context.Context, tok bind.Token) (bind.Target, error) {
	class, ok := e.db.Class(tok.Class)
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "class", tok.Class)
	}
	m, ok := class.Method(tok.Member)
	if !ok {
		return nil, errors.NotFound(errors.PhaseResolve, "method", tok.Class+"."+tok.Member)
	}
	if tok.Hash != 0 && tok.Hash != m.Hash {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Path(tok.Class, tok.Member).
			Detail("hash %#x does not match %#x", tok.Hash, m.Hash).Build()
	}
	if m.Arity()+1 > maxWords {
		return nil, errors.Unsupported(errors.PhaseResolve, fmt.Sprintf("%s takes more than %d arguments", tok, maxWords-1))
	}
	for _, a := range append([]classdb.Arg{m.Return}, m.Args...) {
		if !wordType(a.Type) {
			return nil, errors.Unsupported(errors.PhaseResolve, fmt.Sprintf("%s: %s cannot cross the C ABI", tok, a.TypeName()))
		}
	}

	name := e.symbol(tok)
	fn, err := purego.Dlsym(e.lib, name)
	if err != nil {
		return nil, errors.New(errors.PhaseResolve, errors.KindNotFound).
			Path(tok.Class, tok.Member).Cause(err).Detail("symbol %s", name).Build()
	}

	e.logger.Debug("method bind resolved",
		zap.Stringer("token", tok),
		zap.String("symbol", name))
	return &target{fn: fn, method: m}, nil
}

func wordType(t variant.Type) bool {
	switch t {
	case variant.Nil, variant.Bool, variant.Int, variant.Object, variant.String:
		return true
	}
	return false
}

// target is a resolved C function.
type target struct {
	method *classdb.Method
	fn     uintptr
}

func (t *target) Call(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error) {
	m := t.method
	if len(args) != m.Arity() {
		return variant.Variant{}, errors.ArityMismatch(errors.PhaseRuntime, m.Class+"."+m.Name, m.Arity(), len(args))
	}

	words := make([]uintptr, 0, len(args)+1)
	if self != 0 {
		words = append(words, uintptr(self))
	}
	var keep [][]byte
	for i, a := range args {
		v, err := variant.Coerce(a, m.Args[i].Type)
		if err != nil {
			return variant.Variant{}, errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
				Path(m.Name, "arg"+fmt.Sprint(i)).
				GoType(a.Type().String()).
				NativeType(m.Args[i].TypeName()).
				Cause(err).Build()
		}
		w, buf, err := toWord(v)
		if err != nil {
			return variant.Variant{}, err
		}
		if buf != nil {
			keep = append(keep, buf)
		}
		words = append(words, w)
	}

	r1, _, _ := purego.SyscallN(t.fn, words...)
	goruntime.KeepAlive(keep)
	return fromWord(r1, m.Return.Type), nil
}

// toWord converts v to a machine word. For strings the returned buffer
// holds the NUL terminated bytes and must stay alive for the call.
func toWord(v variant.Variant) (uintptr, []byte, error) {
	switch v.Type() {
	case variant.Nil:
		return 0, nil, nil
	case variant.Bool:
		b, _ := v.AsBool()
		if b {
			return 1, nil, nil
		}
		return 0, nil, nil
	case variant.Int:
		i, _ := v.AsInt()
		return uintptr(i), nil, nil
	case variant.Object:
		p, _ := v.AsObject()
		return uintptr(p), nil, nil
	case variant.String:
		s, _ := v.AsString()
		buf, err := cString(s)
		if err != nil {
			return 0, nil, err
		}
		return uintptr(unsafe.Pointer(&buf[0])), buf, nil
	}
	return 0, nil, errors.Unsupported(errors.PhaseEncode, v.Type().String()+" cannot cross the C ABI")
}

func fromWord(w uintptr, t variant.Type) variant.Variant {
	switch t {
	case variant.Bool:
		return variant.NewBool(w&0xff != 0)
	case variant.Int:
		return variant.NewInt(int64(w))
	case variant.Object:
		return variant.NewObject(uint64(w))
	case variant.String:
		return variant.NewString(goString(w))
	}
	return variant.Variant{}
}

func cString(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, errors.InvalidInput(errors.PhaseEncode, "string contains NUL byte")
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return buf, nil
}

// goString copies a NUL terminated C string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

func (e *Engine) Construct(ctx context.Context, class string) (uint64, bool, error) {
	if e.fn.construct == 0 {
		return 0, false, errors.Unsupported(errors.PhaseRuntime, "nb_construct not exported")
	}
	name, err := cString(class)
	if err != nil {
		return 0, false, err
	}
	r1, _, _ := purego.SyscallN(e.fn.construct, uintptr(unsafe.Pointer(&name[0])))
	if r1 == 0 {
		return 0, false, errors.New(errors.PhaseRuntime, errors.KindNativeCall).
			NativeType(class).Detail("engine could not construct class").Build()
	}
	refCounted := false
	if e.fn.isRefCounted != 0 {
		rc, _, _ := purego.SyscallN(e.fn.isRefCounted, uintptr(unsafe.Pointer(&name[0])))
		refCounted = int32(rc) != 0
	}
	goruntime.KeepAlive(name)
	return uint64(r1), refCounted, nil
}

func (e *Engine) Reference(ctx context.Context, ptr uint64) error {
	if e.fn.reference == 0 {
		return errors.Unsupported(errors.PhaseRuntime, "nb_reference not exported")
	}
	purego.SyscallN(e.fn.reference, uintptr(ptr))
	return nil
}

func (e *Engine) Unreference(ctx context.Context, ptr uint64) (bool, error) {
	if e.fn.unreference == 0 {
		return false, errors.Unsupported(errors.PhaseRuntime, "nb_unreference not exported")
	}
	r1, _, _ := purego.SyscallN(e.fn.unreference, uintptr(ptr))
	return int32(r1) != 0, nil
}

func (e *Engine) Destroy(ctx context.Context, ptr uint64) error {
	if e.fn.destroy == 0 {
		return errors.Unsupported(errors.PhaseRuntime, "nb_destroy not exported")
	}
	purego.SyscallN(e.fn.destroy, uintptr(ptr))
	return nil
}

func (e *Engine) ConnectSignal(ctx context.Context, ptr uint64, signal string) error {
	return e.mirror(e.fn.connect, "nb_connect", ptr, signal)
}

func (e *Engine) DisconnectSignal(ctx context.Context, ptr uint64, signal string) error {
	return e.mirror(e.fn.disconnect, "nb_disconnect", ptr, signal)
}

func (e *Engine) mirror(fn uintptr, export string, ptr uint64, signal string) error {
	if fn == 0 {
		return errors.Unsupported(errors.PhaseSignal, export+" not exported")
	}
	name, err := cString(signal)
	if err != nil {
		return err
	}
	r1, _, _ := purego.SyscallN(fn, uintptr(ptr), uintptr(unsafe.Pointer(&name[0])))
	goruntime.KeepAlive(name)
	return engine.StatusError(signal, ptr, int32(r1))
}

// Alive reports whether the library still knows ptr. Without nb_is_alive
// every pointer is assumed live.
func (e *Engine) Alive(ptr uint64) bool {
	if e.fn.alive == 0 {
		return true
	}
	r1, _, _ := purego.SyscallN(e.fn.alive, uintptr(ptr))
	return int32(r1) != 0
}

// Close stops callback delivery and unloads the library.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cb = engine.NopCallbacks{}
	e.mu.Unlock()

	if e.id != 0 {
		unregister(e.id)
	}
	if err := purego.Dlclose(e.lib); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNativeCall, err, "dlclose "+e.path)
	}
	return nil
}
