package runtime

import (
	"context"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/classdb"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// Typed call thunks. Generated wrappers call these with the bind token of
// the method; arguments are checked against the declared parameter types
// and the result is decoded to R. An Object result decodes to *Object.

func unmarshal[R any](ctx context.Context, o *Object, m *classdb.Method, v variant.Variant) (R, error) {
	if m.Return.Type == variant.Object && v.Type() == variant.Object {
		ptr, _ := v.AsObject()
		class := m.Return.Class
		if class == "" {
			class = rootClass(o.rt.db)
		}
		if _, err := o.rt.WrapAs(ctx, ptr, class); err != nil {
			var zero R
			return zero, err
		}
	}
	r, err := variant.ToContext[R](o.rt.withHook(ctx), v)
	if err != nil {
		var zero R
		return zero, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path(m.Class+"."+m.Name, "result").Cause(err).Build()
	}
	return r, nil
}

func call[R any](ctx context.Context, o *Object, tok bind.Token, args ...any) (R, error) {
	v, m, err := o.invoke(ctx, tok, args)
	if err != nil {
		var zero R
		return zero, err
	}
	return unmarshal[R](ctx, o, m, v)
}

func Call0[R any](ctx context.Context, o *Object, tok bind.Token) (R, error) {
	return call[R](ctx, o, tok)
}

func Call1[R, A any](ctx context.Context, o *Object, tok bind.Token, a A) (R, error) {
	return call[R](ctx, o, tok, a)
}

func Call2[R, A, B any](ctx context.Context, o *Object, tok bind.Token, a A, b B) (R, error) {
	return call[R](ctx, o, tok, a, b)
}

func Call3[R, A, B, C any](ctx context.Context, o *Object, tok bind.Token, a A, b B, c C) (R, error) {
	return call[R](ctx, o, tok, a, b, c)
}

// Void0 calls a method whose result is discarded.
func Void0(ctx context.Context, o *Object, tok bind.Token) error {
	_, _, err := o.invoke(ctx, tok, nil)
	return err
}

func Void1[A any](ctx context.Context, o *Object, tok bind.Token, a A) error {
	_, _, err := o.invoke(ctx, tok, []any{a})
	return err
}

func Void2[A, B any](ctx context.Context, o *Object, tok bind.Token, a A, b B) error {
	_, _, err := o.invoke(ctx, tok, []any{a, b})
	return err
}

func Void3[A, B, C any](ctx context.Context, o *Object, tok bind.Token, a A, b B, c C) error {
	_, _, err := o.invoke(ctx, tok, []any{a, b, c})
	return err
}

// CallN is the thunk for methods with more than three parameters.
func CallN[R any](ctx context.Context, o *Object, tok bind.Token, args ...any) (R, error) {
	return call[R](ctx, o, tok, args...)
}

// VoidN is the result-discarding thunk for more than three parameters.
func VoidN(ctx context.Context, o *Object, tok bind.Token, args ...any) error {
	_, _, err := o.invoke(ctx, tok, args)
	return err
}
