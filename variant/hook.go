package variant

import "context"

// Hook converts v into out (a pointer to the target) for Go types To does
// not know, such as managed object wrappers. It reports false to fall back
// to To.
type Hook func(v Variant, out any) (bool, error)

type hookKey struct{}

// WithHook returns a context whose ToContext conversions consult h first.
func WithHook(ctx context.Context, h Hook) context.Context {
	return context.WithValue(ctx, hookKey{}, h)
}

// ToContext is To with the Hook carried by ctx, if any.
func ToContext[T any](ctx context.Context, v Variant) (T, error) {
	if h, ok := ctx.Value(hookKey{}).(Hook); ok && h != nil {
		var out T
		handled, err := h(v, &out)
		if handled {
			if err != nil {
				var zero T
				return zero, err
			}
			return out, nil
		}
	}
	return To[T](v)
}
