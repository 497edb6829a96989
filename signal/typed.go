package signal

import (
	"context"
	"strconv"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

func arg[T any](ctx context.Context, signal string, args []variant.Variant, i int) (T, error) {
	v, err := variant.ToContext[T](ctx, args[i])
	if err != nil {
		var zero T
		return zero, errors.New(errors.PhaseSignal, errors.KindTypeMismatch).
			Path(signal, "arg"+strconv.Itoa(i)).Cause(err).Build()
	}
	return v, nil
}

// Connect0 subscribes a handler for a signal without arguments.
func Connect0(ctx context.Context, h *Hub, obj uint64, signal string, fn func(ctx context.Context) error) (Connection, error) {
	return h.Connect(ctx, obj, signal, 0, func(ctx context.Context, args []variant.Variant) error {
		return fn(ctx)
	})
}

// Connect1 subscribes a handler whose argument is decoded to A.
func Connect1[A any](ctx context.Context, h *Hub, obj uint64, signal string, fn func(ctx context.Context, a A) error) (Connection, error) {
	return h.Connect(ctx, obj, signal, 1, func(ctx context.Context, args []variant.Variant) error {
		a, err := arg[A](ctx, signal, args, 0)
		if err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func Connect2[A, B any](ctx context.Context, h *Hub, obj uint64, signal string, fn func(ctx context.Context, a A, b B) error) (Connection, error) {
	return h.Connect(ctx, obj, signal, 2, func(ctx context.Context, args []variant.Variant) error {
		a, err := arg[A](ctx, signal, args, 0)
		if err != nil {
			return err
		}
		b, err := arg[B](ctx, signal, args, 1)
		if err != nil {
			return err
		}
		return fn(ctx, a, b)
	})
}

func Connect3[A, B, C any](ctx context.Context, h *Hub, obj uint64, signal string, fn func(ctx context.Context, a A, b B, c C) error) (Connection, error) {
	return h.Connect(ctx, obj, signal, 3, func(ctx context.Context, args []variant.Variant) error {
		a, err := arg[A](ctx, signal, args, 0)
		if err != nil {
			return err
		}
		b, err := arg[B](ctx, signal, args, 1)
		if err != nil {
			return err
		}
		c, err := arg[C](ctx, signal, args, 2)
		if err != nil {
			return err
		}
		return fn(ctx, a, b, c)
	})
}
