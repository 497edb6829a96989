package dispatch

import (
	"context"
	"strconv"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

func implements[I any](self any) bool {
	_, ok := self.(I)
	return ok
}

func arg[T any](ctx context.Context, member string, args []variant.Variant, i int) (T, error) {
	v, err := variant.ToContext[T](ctx, args[i])
	if err != nil {
		var zero T
		return zero, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Path(member, "arg"+strconv.Itoa(i)).Cause(err).Build()
	}
	return v, nil
}

func result[R any](member string, r R) (variant.Variant, error) {
	v, err := variant.From(r)
	if err != nil {
		return variant.Variant{}, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Path(member, "result").Cause(err).Build()
	}
	return v, nil
}

// Method0 builds an entry for a member without arguments or result. The
// member is overridden by values implementing I.
func Method0[I any](member string, fn func(ctx context.Context, impl I) error) Entry {
	return Entry{
		Member:     member,
		Overridden: implements[I],
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			return variant.Variant{}, fn(ctx, self.(I))
		},
	}
}

func Method1[I, A any](member string, fn func(ctx context.Context, impl I, a A) error) Entry {
	return Entry{
		Member:     member,
		Arity:      1,
		Overridden: implements[I],
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			a, err := arg[A](ctx, member, args, 0)
			if err != nil {
				return variant.Variant{}, err
			}
			return variant.Variant{}, fn(ctx, self.(I), a)
		},
	}
}

func Method2[I, A, B any](member string, fn func(ctx context.Context, impl I, a A, b B) error) Entry {
	return Entry{
		Member:     member,
		Arity:      2,
		Overridden: implements[I],
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			a, err := arg[A](ctx, member, args, 0)
			if err != nil {
				return variant.Variant{}, err
			}
			b, err := arg[B](ctx, member, args, 1)
			if err != nil {
				return variant.Variant{}, err
			}
			return variant.Variant{}, fn(ctx, self.(I), a, b)
		},
	}
}

func Method3[I, A, B, C any](member string, fn func(ctx context.Context, impl I, a A, b B, c C) error) Entry {
	return Entry{
		Member:     member,
		Arity:      3,
		Overridden: implements[I],
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			a, err := arg[A](ctx, member, args, 0)
			if err != nil {
				return variant.Variant{}, err
			}
			b, err := arg[B](ctx, member, args, 1)
			if err != nil {
				return variant.Variant{}, err
			}
			c, err := arg[C](ctx, member, args, 2)
			if err != nil {
				return variant.Variant{}, err
			}
			return variant.Variant{}, fn(ctx, self.(I), a, b, c)
		},
	}
}

// Func0 builds an entry for a member returning a value.
func Func0[I, R any](member string, fn func(ctx context.Context, impl I) (R, error)) Entry {
	return Entry{
		Member:     member,
		Overridden: implements[I],
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			r, err := fn(ctx, self.(I))
			if err != nil {
				return variant.Variant{}, err
			}
			return result(member, r)
		},
	}
}

func Func1[I, A, R any](member string, fn func(ctx context.Context, impl I, a A) (R, error)) Entry {
	return Entry{
		Member:     member,
		Arity:      1,
		Overridden: implements[I],
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			a, err := arg[A](ctx, member, args, 0)
			if err != nil {
				return variant.Variant{}, err
			}
			r, err := fn(ctx, self.(I), a)
			if err != nil {
				return variant.Variant{}, err
			}
			return result(member, r)
		},
	}
}

func Func2[I, A, B, R any](member string, fn func(ctx context.Context, impl I, a A, b B) (R, error)) Entry {
	return Entry{
		Member:     member,
		Arity:      2,
		Overridden: implements[I],
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			a, err := arg[A](ctx, member, args, 0)
			if err != nil {
				return variant.Variant{}, err
			}
			b, err := arg[B](ctx, member, args, 1)
			if err != nil {
				return variant.Variant{}, err
			}
			r, err := fn(ctx, self.(I), a, b)
			if err != nil {
				return variant.Variant{}, err
			}
			return result(member, r)
		},
	}
}
