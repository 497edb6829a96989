package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

type ancestry map[string][]string

func (a ancestry) Ancestors(class string) []string { return a[class] }

var hierarchy = ancestry{
	"Object":     {"Object"},
	"Node":       {"Node", "Object"},
	"CanvasItem": {"CanvasItem", "Node", "Object"},
}

type redrawer interface {
	Redraw(ctx context.Context) error
}

type readier interface {
	Ready(ctx context.Context) error
}

type processor interface {
	Process(ctx context.Context, delta float64) error
}

type namer interface {
	DisplayName(ctx context.Context, prefix string) (string, error)
}

// plainItem overrides nothing.
type plainItem struct{}

// drawnItem overrides _redraw and _process.
type drawnItem struct {
	redraws int
	deltas  []float64
}

func (d *drawnItem) Redraw(ctx context.Context) error {
	d.redraws++
	return nil
}

func (d *drawnItem) Process(ctx context.Context, delta float64) error {
	d.deltas = append(d.deltas, delta)
	return nil
}

type readyNode struct{ ready bool }

func (r *readyNode) Ready(ctx context.Context) error {
	r.ready = true
	return nil
}

type namedNode struct{}

func (namedNode) DisplayName(ctx context.Context, prefix string) (string, error) {
	return prefix + "node", nil
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	d := New(hierarchy)
	err := d.Register("Node",
		Method0[readier]("_ready", func(ctx context.Context, impl readier) error { return impl.Ready(ctx) }),
		Method1[processor, float64]("_process", func(ctx context.Context, impl processor, delta float64) error {
			return impl.Process(ctx, delta)
		}),
		Func1[namer, string, string]("_display_name", func(ctx context.Context, impl namer, prefix string) (string, error) {
			return impl.DisplayName(ctx, prefix)
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	err = d.Register("CanvasItem",
		Method0[redrawer]("_redraw", func(ctx context.Context, impl redrawer) error { return impl.Redraw(ctx) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDispatch_OnlyOverridesRun(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "CanvasItem", &plainItem{}, "_redraw", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Handled {
		t.Fatal("non-overriding instance reported handled")
	}

	item := &drawnItem{}
	res, err = d.Dispatch(ctx, "CanvasItem", item, "_redraw", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Handled || res.Class != "CanvasItem" {
		t.Fatalf("result = %+v", res)
	}
	if item.redraws != 1 {
		t.Fatalf("Redraw ran %d times, want exactly 1", item.redraws)
	}
}

func TestDispatch_FallsThroughToAncestors(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	item := &drawnItem{}
	res, err := d.Dispatch(ctx, "CanvasItem", item, "_process", []variant.Variant{variant.NewFloat(0.016)})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Handled || res.Class != "Node" {
		t.Fatalf("result = %+v, want handled at Node", res)
	}
	if diff := cmp.Diff([]float64{0.016}, item.deltas); diff != "" {
		t.Errorf("deltas mismatch (-want +got):\n%s", diff)
	}

	// Int arguments widen to float parameters.
	if _, err := d.Dispatch(ctx, "CanvasItem", item, "_process", []variant.Variant{variant.NewInt(2)}); err != nil {
		t.Fatal(err)
	}
	if len(item.deltas) != 2 || item.deltas[1] != 2 {
		t.Errorf("deltas = %v", item.deltas)
	}

	// Unknown member on every level.
	res, err = d.Dispatch(ctx, "CanvasItem", item, "_unknown", nil)
	if err != nil || res.Handled {
		t.Fatalf("unknown member = %+v, %v", res, err)
	}

	// Members registered below the instance class are invisible.
	node := &readyNode{}
	res, _ = d.Dispatch(ctx, "Object", node, "_ready", nil)
	if res.Handled || node.ready {
		t.Fatal("Object must not see Node virtuals")
	}
	res, _ = d.Dispatch(ctx, "Node", node, "_ready", nil)
	if !res.Handled || !node.ready {
		t.Fatal("_ready not dispatched on Node")
	}
}

func TestDispatch_ArityMismatch(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()
	item := &drawnItem{}

	tests := []struct {
		name   string
		member string
		args   []variant.Variant
	}{
		{"too_few", "_process", nil},
		{"too_many", "_process", []variant.Variant{variant.NewFloat(1), variant.NewFloat(2)}},
		{"args_to_nullary", "_redraw", []variant.Variant{variant.NewInt(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Dispatch(ctx, "CanvasItem", item, tt.member, tt.args)
			if errors.KindOf(err) != errors.KindArityMismatch {
				t.Fatalf("err = %v, want arity mismatch", err)
			}
		})
	}
	if item.redraws != 0 || len(item.deltas) != 0 {
		t.Fatal("override ran despite arity mismatch")
	}
}

func TestDispatch_ArityNotCheckedWithoutOverride(t *testing.T) {
	d := newTestDispatcher(t)
	res, err := d.Dispatch(context.Background(), "CanvasItem", &plainItem{}, "_process", nil)
	if err != nil || res.Handled {
		t.Fatalf("non-overriding instance = %+v, %v", res, err)
	}
}

func TestDispatch_ResultAndConversionErrors(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "Node", namedNode{}, "_display_name", []variant.Variant{variant.NewString("my-")})
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := res.Value.AsString(); s != "my-node" {
		t.Fatalf("value = %v", res.Value)
	}

	_, err = d.Dispatch(ctx, "Node", namedNode{}, "_display_name", []variant.Variant{variant.NewInt(1)})
	if errors.KindOf(err) != errors.KindTypeMismatch {
		t.Fatalf("err = %v, want type mismatch", err)
	}
}

func TestDispatch_HandlerError(t *testing.T) {
	d := New(nil)
	boom := fmt.Errorf("boom")
	err := d.Register("Thing", Entry{
		Member: "_fail",
		Invoke: func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
			return variant.Variant{}, boom
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := d.Dispatch(context.Background(), "Thing", nil, "_fail", nil)
	if err != boom || !res.Handled {
		t.Fatalf("Dispatch = %+v, %v", res, err)
	}
}

func TestRegister_Errors(t *testing.T) {
	d := newTestDispatcher(t)
	noop := func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error) {
		return variant.Variant{}, nil
	}

	if err := d.Register("Node", Entry{Member: "_ready", Invoke: noop}); errors.KindOf(err) != errors.KindDuplicate {
		t.Errorf("duplicate err = %v", err)
	}
	if err := d.Register("New", Entry{Member: "a", Invoke: noop}, Entry{Member: "a", Invoke: noop}); errors.KindOf(err) != errors.KindDuplicate {
		t.Errorf("duplicate in batch err = %v", err)
	}
	if d.Has("New", "a") {
		t.Error("failed batch must not register anything")
	}
	if err := d.Register("New", Entry{Member: "b"}); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("missing handler err = %v", err)
	}
	if err := d.Register("New", Entry{Member: "c", Arity: -1, Invoke: noop}); errors.KindOf(err) != errors.KindRegistration {
		t.Errorf("negative arity err = %v", err)
	}
}

func TestHasAndMembers(t *testing.T) {
	d := newTestDispatcher(t)
	if !d.Has("CanvasItem", "_ready") {
		t.Error("CanvasItem should inherit _ready")
	}
	if d.Has("Node", "_redraw") {
		t.Error("Node must not see _redraw")
	}
	want := []string{"_display_name", "_process", "_ready"}
	if diff := cmp.Diff(want, d.Members("Node")); diff != "" {
		t.Errorf("Members mismatch (-want +got):\n%s", diff)
	}
}

type adder interface {
	Add(a, b, c int64) int64
}

type calc struct{ calls int }

func (c *calc) Add(a, b, x int64) int64 {
	c.calls++
	return a + b + x
}

func TestTypedHelpers(t *testing.T) {
	d := New(nil)
	var sum int64
	err := d.Register("Calc",
		Method3[adder, int64, int64, int64]("_add", func(ctx context.Context, impl adder, a, b, c int64) error {
			sum = impl.Add(a, b, c)
			return nil
		}),
		Method2[adder, string, bool]("_pair", func(ctx context.Context, impl adder, s string, b bool) error {
			if s != "x" || !b {
				return fmt.Errorf("got %q %v", s, b)
			}
			return nil
		}),
		Func0[adder, []string]("_tags", func(ctx context.Context, impl adder) ([]string, error) {
			return []string{"b", "a"}, nil
		}),
		Func2[adder, int64, int64, int64]("_sum2", func(ctx context.Context, impl adder, a, b int64) (int64, error) {
			return impl.Add(a, b, 0), nil
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c := &calc{}

	ints := func(n ...int64) []variant.Variant {
		out := make([]variant.Variant, len(n))
		for i, v := range n {
			out[i] = variant.NewInt(v)
		}
		return out
	}

	if _, err := d.Dispatch(ctx, "Calc", c, "_add", ints(1, 2, 3)); err != nil || sum != 6 {
		t.Fatalf("_add: sum %d, err %v", sum, err)
	}
	if _, err := d.Dispatch(ctx, "Calc", c, "_pair", []variant.Variant{variant.NewString("x"), variant.NewBool(true)}); err != nil {
		t.Fatalf("_pair: %v", err)
	}
	res, err := d.Dispatch(ctx, "Calc", c, "_tags", nil)
	if err != nil {
		t.Fatal(err)
	}
	if tags, _ := res.Value.AsPackedStrings(); !cmp.Equal(tags, []string{"b", "a"}) {
		t.Fatalf("_tags = %v", res.Value)
	}
	res, err = d.Dispatch(ctx, "Calc", c, "_sum2", ints(40, 2))
	if n, _ := res.Value.AsInt(); err != nil || n != 42 {
		t.Fatalf("_sum2 = %v, %v", res.Value, err)
	}
	if res, _ := d.Dispatch(ctx, "Calc", &plainItem{}, "_add", ints(1, 2, 3)); res.Handled {
		t.Fatal("non-implementing value handled _add")
	}
}
