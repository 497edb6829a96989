package wasm

import (
	"context"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/signal"
	"github.com/wippyai/nativebind/variant"
)

// HostModuleName is the module the guest imports callbacks from.
const HostModuleName = "nativebind"

// Config configures how the guest is instantiated.
type Config struct {
	Logger *zap.Logger

	// ModuleName names the guest instance. Defaults to "engine".
	ModuleName string

	// HostModules are instantiated before the guest, after "nativebind".
	HostModules []HostModule

	// MemoryLimitPages caps guest memory (64KiB pages). 0 means the
	// wazero default.
	MemoryLimitPages uint32

	// WASI instantiates wasi_snapshot_preview1 for guests built against it.
	WASI bool
}

// HostModule is an additional module of Go functions the guest may import.
type HostModule struct {
	Name  string
	Funcs []HostFunc
}

// HostFunc is a single Go function exported by a HostModule.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

type exports struct {
	version      api.Function
	resolve      api.Function
	call         api.Function
	construct    api.Function
	isRefCounted api.Function
	reference    api.Function
	unreference  api.Function
	destroy      api.Function
	connect      api.Function
	disconnect   api.Function
}

// Engine is a native engine running inside wazero.
type Engine struct {
	runtime wazero.Runtime
	mod     api.Module
	mem     *Memory
	alloc   *allocator
	enc     *variant.Encoder
	dec     *variant.Decoder
	logger  *zap.Logger
	cb      engine.Callbacks
	fn      exports
	version string
	cbMu    sync.RWMutex
	closed  bool
}

var (
	_ engine.Backend         = (*Engine)(nil)
	_ engine.LivenessChecker = (*Engine)(nil)
)

// LoadFile reads a guest from path and loads it.
func LoadFile(ctx context.Context, path string, cfg *Config) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read engine module")
	}
	return Load(ctx, data, cfg)
}

// Load compiles and instantiates a guest engine.
func Load(ctx context.Context, wasmBytes []byte, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	e := &Engine{
		enc:    variant.NewEncoder(),
		dec:    variant.NewDecoder(),
		logger: cfg.Logger,
		cb:     engine.NopCallbacks{},
	}
	if e.logger == nil {
		e.logger = engine.Logger()
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if err := e.instantiate(ctx, wasmBytes, cfg); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	return e, nil
}

func (e *Engine) instantiate(ctx context.Context, wasmBytes []byte, cfg *Config) error {
	if cfg.WASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
			return errors.Wrap(errors.PhaseLoad, errors.KindRegistration, err, "instantiate WASI")
		}
	}
	if err := e.instantiateHost(ctx); err != nil {
		return err
	}
	for _, hm := range cfg.HostModules {
		b := e.runtime.NewHostModuleBuilder(hm.Name)
		for _, f := range hm.Funcs {
			b.NewFunctionBuilder().
				WithGoModuleFunction(f.Fn, f.Params, f.Results).
				Export(f.Name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return errors.Wrap(errors.PhaseLoad, errors.KindRegistration, err, "instantiate host module "+hm.Name)
		}
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "compile engine module")
	}

	name := cfg.ModuleName
	if name == "" {
		name = "engine"
	}
	modCfg := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions("_initialize")
	mod, err := e.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindRegistration, err, "instantiate engine module")
	}
	e.mod = mod

	if mod.Memory() == nil {
		return errors.NotFound(errors.PhaseLoad, "export", "memory")
	}
	e.mem = NewMemory(mod.Memory())
	e.alloc = &allocator{
		allocFn: mod.ExportedFunction("nb_alloc"),
		freeFn:  mod.ExportedFunction("nb_free"),
		logger:  e.logger,
	}
	if e.alloc.allocFn == nil {
		return errors.NotFound(errors.PhaseLoad, "export", "nb_alloc")
	}

	e.fn = exports{
		version:      mod.ExportedFunction("nb_version"),
		resolve:      mod.ExportedFunction("nb_resolve"),
		call:         mod.ExportedFunction("nb_call"),
		construct:    mod.ExportedFunction("nb_construct"),
		isRefCounted: mod.ExportedFunction("nb_is_refcounted"),
		reference:    mod.ExportedFunction("nb_reference"),
		unreference:  mod.ExportedFunction("nb_unreference"),
		destroy:      mod.ExportedFunction("nb_destroy"),
		connect:      mod.ExportedFunction("nb_connect"),
		disconnect:   mod.ExportedFunction("nb_disconnect"),
	}
	for n, f := range map[string]api.Function{
		"nb_version": e.fn.version,
		"nb_resolve": e.fn.resolve,
		"nb_call":    e.fn.call,
	} {
		if f == nil {
			return errors.NotFound(errors.PhaseLoad, "export", n)
		}
	}

	res, err := e.fn.version.Call(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindNativeCall, err, "nb_version trapped")
	}
	e.version, err = readString(e.mem, uint32(res[0]), uint32(res[0]>>32))
	if err != nil {
		return err
	}

	e.logger.Debug("engine module loaded",
		zap.String("module", name),
		zap.String("version", e.version),
		zap.Bool("free", e.alloc.freeFn != nil))
	return nil
}

// Version returns the version string reported by nb_version.
func (e *Engine) Version() string { return e.version }

// Module returns the guest instance.
func (e *Engine) Module() api.Module { return e.mod }

// Memory returns the guest memory.
func (e *Engine) Memory() *Memory { return e.mem }

func (e *Engine) SetCallbacks(cb engine.Callbacks) {
	if cb == nil {
		cb = engine.NopCallbacks{}
	}
	e.cbMu.Lock()
	e.cb = cb
	e.cbMu.Unlock()
}

func (e *Engine) callbacks() engine.Callbacks {
	e.cbMu.RLock()
	defer e.cbMu.RUnlock()
	return e.cb
}

// strings writes each string into guest memory. The returned allocations
// hold them; (ptr, len) pairs are returned in order.
func (e *Engine) strings(alloc *allocator, ss ...string) ([]uint64, *variant.Allocations, error) {
	allocs := variant.NewAllocations()
	out := make([]uint64, 0, 2*len(ss))
	for _, s := range ss {
		if s == "" {
			out = append(out, 0, 0)
			continue
		}
		ptr, err := alloc.Alloc(uint32(len(s)), 1)
		if err != nil {
			allocs.FreeAndRelease(alloc)
			return nil, nil, err
		}
		allocs.Add(ptr, uint32(len(s)), 1)
		if err := e.mem.Write(ptr, []byte(s)); err != nil {
			allocs.FreeAndRelease(alloc)
			return nil, nil, err
		}
		out = append(out, uint64(ptr), uint64(len(s)))
	}
	return out, allocs, nil
}

// Resolve asks the guest for a method id and returns a Target calling it.
func (e *Engine) Resolve(ctx context.Context, tok bind.Token) (bind.Target, error) {
	alloc := e.alloc.withContext(ctx)
	stack, allocs, err := e.strings(alloc, tok.Class, tok.Member)
	if err != nil {
		return nil, err
	}
	defer allocs.FreeAndRelease(alloc)

	stack = append(stack, tok.Hash)
	if err := e.fn.resolve.CallWithStack(ctx, stack); err != nil {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindNativeCall, err, "nb_resolve trapped")
	}
	id := uint32(stack[0])
	if id == 0 {
		return nil, errors.NotFound(errors.PhaseResolve, "method bind", tok.String())
	}

	e.logger.Debug("method bind resolved",
		zap.Stringer("token", tok),
		zap.Uint32("id", id))

	return bind.TargetFunc(func(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error) {
		return e.call(ctx, id, tok.Member, self, args)
	}), nil
}

func (e *Engine) call(ctx context.Context, id uint32, member string, self uint64, args []variant.Variant) (variant.Variant, error) {
	alloc := e.alloc.withContext(ctx)
	argsPtr, allocs, err := e.enc.EncodeArgs(args, e.mem, alloc)
	if err != nil {
		allocs.Release()
		return variant.Variant{}, err
	}
	defer allocs.FreeAndRelease(alloc)

	retPtr, err := alloc.Alloc(variant.CellSize, variant.CellAlign)
	if err != nil {
		return variant.Variant{}, err
	}
	allocs.Add(retPtr, variant.CellSize, variant.CellAlign)
	if err := e.mem.Write(retPtr, make([]byte, variant.CellSize)); err != nil {
		return variant.Variant{}, err
	}

	stack := []uint64{uint64(id), self, uint64(argsPtr), uint64(len(args)), uint64(retPtr)}
	if err := e.fn.call.CallWithStack(ctx, stack); err != nil {
		return variant.Variant{}, errors.New(errors.PhaseRuntime, errors.KindNativeCall).
			Path(member).Cause(err).Detail("nb_call trapped").Build()
	}
	if err := engine.StatusError(member, self, api.DecodeI32(stack[0])); err != nil {
		return variant.Variant{}, err
	}
	return e.dec.Decode(retPtr, e.mem)
}

func (e *Engine) Construct(ctx context.Context, class string) (uint64, bool, error) {
	if e.fn.construct == nil {
		return 0, false, errors.Unsupported(errors.PhaseRuntime, "nb_construct not exported")
	}
	alloc := e.alloc.withContext(ctx)
	stack, allocs, err := e.strings(alloc, class)
	if err != nil {
		return 0, false, err
	}
	defer allocs.FreeAndRelease(alloc)

	params := []uint64{stack[0], stack[1]}
	if err := e.fn.construct.CallWithStack(ctx, stack); err != nil {
		return 0, false, errors.Wrap(errors.PhaseRuntime, errors.KindNativeCall, err, "nb_construct trapped")
	}
	ptr := stack[0]
	if ptr == 0 {
		return 0, false, errors.New(errors.PhaseRuntime, errors.KindNativeCall).
			NativeType(class).Detail("engine could not construct class").Build()
	}

	refCounted := false
	if e.fn.isRefCounted != nil {
		if err := e.fn.isRefCounted.CallWithStack(ctx, params); err != nil {
			// ptr is not returned on error; free it here.
			if derr := e.Destroy(ctx, ptr); derr != nil {
				e.logger.Warn("failed to destroy unclassified object", zap.Uint64("ptr", ptr), zap.Error(derr))
			}
			return 0, false, errors.Wrap(errors.PhaseRuntime, errors.KindNativeCall, err, "nb_is_refcounted trapped")
		}
		refCounted = api.DecodeI32(params[0]) != 0
	}
	return ptr, refCounted, nil
}

func (e *Engine) Reference(ctx context.Context, ptr uint64) error {
	if e.fn.reference == nil {
		return errors.Unsupported(errors.PhaseRuntime, "nb_reference not exported")
	}
	if _, err := e.fn.reference.Call(ctx, ptr); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNativeCall, err, "nb_reference trapped")
	}
	return nil
}

func (e *Engine) Unreference(ctx context.Context, ptr uint64) (bool, error) {
	if e.fn.unreference == nil {
		return false, errors.Unsupported(errors.PhaseRuntime, "nb_unreference not exported")
	}
	res, err := e.fn.unreference.Call(ctx, ptr)
	if err != nil {
		return false, errors.Wrap(errors.PhaseRuntime, errors.KindNativeCall, err, "nb_unreference trapped")
	}
	return api.DecodeI32(res[0]) != 0, nil
}

func (e *Engine) Destroy(ctx context.Context, ptr uint64) error {
	if e.fn.destroy == nil {
		return errors.Unsupported(errors.PhaseRuntime, "nb_destroy not exported")
	}
	if _, err := e.fn.destroy.Call(ctx, ptr); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNativeCall, err, "nb_destroy trapped")
	}
	return nil
}

func (e *Engine) ConnectSignal(ctx context.Context, ptr uint64, name string) error {
	return e.mirror(ctx, e.fn.connect, "nb_connect", ptr, name)
}

func (e *Engine) DisconnectSignal(ctx context.Context, ptr uint64, name string) error {
	return e.mirror(ctx, e.fn.disconnect, "nb_disconnect", ptr, name)
}

func (e *Engine) mirror(ctx context.Context, fn api.Function, export string, ptr uint64, name string) error {
	if fn == nil {
		return errors.Unsupported(errors.PhaseSignal, export+" not exported")
	}
	alloc := e.alloc.withContext(ctx)
	strs, allocs, err := e.strings(alloc, name)
	if err != nil {
		return err
	}
	defer allocs.FreeAndRelease(alloc)

	stack := append([]uint64{ptr}, strs...)
	if err := fn.CallWithStack(ctx, stack); err != nil {
		return errors.Wrap(errors.PhaseSignal, errors.KindNativeCall, err, export+" trapped")
	}
	return engine.StatusError(name, ptr, api.DecodeI32(stack[0]))
}

// Alive reports whether the guest still knows ptr. Without nb_is_alive
// every pointer is assumed live.
func (e *Engine) Alive(ptr uint64) bool {
	fn := e.mod.ExportedFunction("nb_is_alive")
	if fn == nil {
		return true
	}
	res, err := fn.Call(context.Background(), ptr)
	if err != nil {
		return false
	}
	return api.DecodeI32(res[0]) != 0
}

// Close tears down the guest and the wazero runtime.
func (e *Engine) Close(ctx context.Context) error {
	e.cbMu.Lock()
	if e.closed {
		e.cbMu.Unlock()
		return nil
	}
	e.closed = true
	e.cb = engine.NopCallbacks{}
	e.cbMu.Unlock()

	e.logger.Debug("closing engine module", zap.String("version", e.version))
	return e.runtime.Close(ctx)
}

func readString(mem *Memory, ptr, length uint32) (string, error) {
	if length == 0 {
		return "", nil
	}
	data, err := mem.Read(ptr, length)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var _ signal.Mirror = (*Engine)(nil)
