package engine

import (
	"context"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/handle"
	"github.com/wippyai/nativebind/signal"
	"github.com/wippyai/nativebind/variant"
)

// Backend is a native engine.
type Backend interface {
	bind.Resolver
	signal.Mirror

	// Version returns the engine build version (semver, optional "v").
	Version() string

	// Construct creates an instance of class. refCounted reports whether
	// the object participates in engine reference counting. ptr is zero
	// when err is non-nil.
	Construct(ctx context.Context, class string) (ptr uint64, refCounted bool, err error)

	// Reference increments the engine reference count of ptr.
	Reference(ctx context.Context, ptr uint64) error

	// Unreference decrements the engine reference count of ptr and
	// reports whether the object was freed.
	Unreference(ctx context.Context, ptr uint64) (freed bool, err error)

	// Destroy frees a non reference-counted object.
	Destroy(ctx context.Context, ptr uint64) error

	// SetCallbacks installs the managed side. It is called once before any
	// other method except Version.
	SetCallbacks(cb Callbacks)

	Close(ctx context.Context) error
}

// Callbacks is the managed side as seen by the engine.
type Callbacks interface {
	// CallVirtual runs a managed override of member on ptr. handled is
	// false when no override exists and the engine should run its default.
	CallVirtual(ctx context.Context, ptr uint64, member string, args []variant.Variant) (ret variant.Variant, handled bool, err error)

	// EmitSignal delivers a signal emission to the managed handlers.
	EmitSignal(ctx context.Context, ptr uint64, signal string, args []variant.Variant) error

	// ObjectFreed reports that the engine freed ptr on its own.
	ObjectFreed(ctx context.Context, ptr uint64)
}

// LivenessChecker is optionally implemented by backends that can tell
// whether a pointer refers to a live object.
type LivenessChecker = handle.Checker

// NopCallbacks handles nothing. Backends use it until SetCallbacks is
// called.
type NopCallbacks struct{}

func (NopCallbacks) CallVirtual(context.Context, uint64, string, []variant.Variant) (variant.Variant, bool, error) {
	return variant.Variant{}, false, nil
}

func (NopCallbacks) EmitSignal(context.Context, uint64, string, []variant.Variant) error { return nil }

func (NopCallbacks) ObjectFreed(context.Context, uint64) {}

// Native call status codes.
const (
	StatusOK          int32 = 0
	StatusBadMethod   int32 = 1
	StatusBadInstance int32 = 2
	StatusArity       int32 = 3
	StatusType        int32 = 4
)

// StatusError converts a native status to an error; StatusOK yields nil.
func StatusError(member string, self uint64, status int32) error {
	switch status {
	case StatusOK:
		return nil
	case StatusBadMethod:
		return errors.NotFound(errors.PhaseRuntime, "method", member)
	case StatusBadInstance:
		return errors.FreedHandle(self, "")
	case StatusArity:
		return errors.New(errors.PhaseRuntime, errors.KindArityMismatch).
			Path(member).Detail("engine rejected argument count").Build()
	case StatusType:
		return errors.New(errors.PhaseRuntime, errors.KindTypeMismatch).
			Path(member).Detail("engine rejected argument types").Build()
	}
	return errors.NativeCall(member, status)
}
