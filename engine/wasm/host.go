package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// Host log levels passed to nativebind.log.
const (
	LogDebug int32 = iota
	LogInfo
	LogWarn
	LogError
)

// Results of call_virtual.
const (
	virtualHandled    int32 = 1
	virtualNotHandled int32 = 0
	hostError         int32 = -1
)

func (e *Engine) instantiateHost(ctx context.Context) error {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64

	_, err := e.runtime.NewHostModuleBuilder(HostModuleName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.hostCallVirtual),
			[]api.ValueType{i64, i32, i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("call_virtual").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.hostEmitSignal),
			[]api.ValueType{i64, i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("emit_signal").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.hostObjectFreed),
			[]api.ValueType{i64}, nil).
		Export("object_freed").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.hostLog),
			[]api.ValueType{i32, i32, i32}, nil).
		Export("log").
		Instantiate(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindRegistration, err, "instantiate host module "+HostModuleName)
	}
	return nil
}

// callerMemory is the memory of the module making the host call.
func callerMemory(mod api.Module) *Memory {
	return NewMemory(mod.Memory())
}

func (e *Engine) hostCallVirtual(ctx context.Context, mod api.Module, stack []uint64) {
	mem := callerMemory(mod)
	self := stack[0]
	retPtr := uint32(stack[5])

	member, err := readString(mem, uint32(stack[1]), uint32(stack[2]))
	if err != nil {
		e.hostFailed("call_virtual", self, err)
		stack[0] = api.EncodeI32(hostError)
		return
	}
	args, err := e.dec.DecodeArgs(uint32(stack[3]), uint32(stack[4]), mem)
	if err != nil {
		e.hostFailed(member, self, err)
		stack[0] = api.EncodeI32(hostError)
		return
	}

	ret, handled, err := e.callbacks().CallVirtual(ctx, self, member, args)
	if err != nil {
		e.hostFailed(member, self, err)
		stack[0] = api.EncodeI32(hostError)
		return
	}
	if !handled {
		stack[0] = api.EncodeI32(virtualNotHandled)
		return
	}

	if retPtr != 0 {
		alloc := e.alloc.withContext(ctx)
		allocs := variant.NewAllocations()
		if err := e.enc.Encode(ret, retPtr, mem, alloc, allocs); err != nil {
			allocs.FreeAndRelease(alloc)
			e.hostFailed(member, self, err)
			stack[0] = api.EncodeI32(hostError)
			return
		}
		// the guest owns the result's storage from here on
		allocs.Release()
	}
	stack[0] = api.EncodeI32(virtualHandled)
}

func (e *Engine) hostEmitSignal(ctx context.Context, mod api.Module, stack []uint64) {
	mem := callerMemory(mod)
	self := stack[0]

	name, err := readString(mem, uint32(stack[1]), uint32(stack[2]))
	if err != nil {
		e.hostFailed("emit_signal", self, err)
		stack[0] = api.EncodeI32(hostError)
		return
	}
	args, err := e.dec.DecodeArgs(uint32(stack[3]), uint32(stack[4]), mem)
	if err != nil {
		e.hostFailed(name, self, err)
		stack[0] = api.EncodeI32(hostError)
		return
	}
	if err := e.callbacks().EmitSignal(ctx, self, name, args); err != nil {
		e.hostFailed(name, self, err)
		stack[0] = api.EncodeI32(hostError)
		return
	}
	stack[0] = 0
}

func (e *Engine) hostObjectFreed(ctx context.Context, _ api.Module, stack []uint64) {
	e.callbacks().ObjectFreed(ctx, stack[0])
}

func (e *Engine) hostLog(_ context.Context, mod api.Module, stack []uint64) {
	msg, err := readString(callerMemory(mod), uint32(stack[1]), uint32(stack[2]))
	if err != nil {
		e.logger.Warn("guest log with bad string", zap.Error(err))
		return
	}
	switch api.DecodeI32(stack[0]) {
	case LogDebug:
		e.logger.Debug(msg, zap.String("source", "guest"))
	case LogInfo:
		e.logger.Info(msg, zap.String("source", "guest"))
	case LogWarn:
		e.logger.Warn(msg, zap.String("source", "guest"))
	default:
		e.logger.Error(msg, zap.String("source", "guest"))
	}
}

func (e *Engine) hostFailed(member string, self uint64, err error) {
	e.logger.Warn("host callback failed",
		zap.String("member", member),
		zap.Uint64("self", self),
		zap.Error(err))
}
