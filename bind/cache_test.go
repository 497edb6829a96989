package bind

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// fakeResolver hands out one distinct target per known token.
type fakeResolver struct {
	known   map[Token]bool
	calls   atomic.Int64
	gate    chan struct{}
	failing map[Token]error
}

type fakeTarget struct{ tok Token }

func (f *fakeTarget) Call(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error) {
	return variant.NewString(f.tok.String()), nil
}

func (r *fakeResolver) Resolve(ctx context.Context, tok Token) (Target, error) {
	r.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if err, ok := r.failing[tok]; ok {
		return nil, err
	}
	if !r.known[tok] {
		return nil, errors.NotFound(errors.PhaseResolve, "method", tok.String())
	}
	return &fakeTarget{tok: tok}, nil
}

var (
	addChild = Token{Class: "Node", Member: "add_child", Hash: 0x1}
	getName  = Token{Class: "Node", Member: "get_name", Hash: 0x2}
	missing  = Token{Class: "Node", Member: "teleport", Hash: 0x3}
)

func newFake() *fakeResolver {
	return &fakeResolver{known: map[Token]bool{addChild: true, getName: true}}
}

func TestCache_Idempotent(t *testing.T) {
	r := newFake()
	c := NewCache(r)
	ctx := context.Background()

	first, err := c.Resolve(ctx, addChild)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := c.Resolve(ctx, addChild)
	if err != nil {
		t.Fatalf("Resolve again: %v", err)
	}
	if first != second {
		t.Fatal("same token resolved to different targets")
	}
	if r.calls.Load() != 1 || c.Lookups() != 1 {
		t.Fatalf("resolver called %d times, lookups %d; want 1", r.calls.Load(), c.Lookups())
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}

	other, _ := c.Resolve(ctx, getName)
	if other == first {
		t.Fatal("different tokens share a target")
	}
}

func TestCache_HashIsPartOfToken(t *testing.T) {
	c := NewCache(newFake())
	stale := addChild
	stale.Hash = 0xbad
	if _, err := c.Resolve(context.Background(), stale); errors.KindOf(err) != errors.KindNotFound {
		t.Fatalf("stale hash err = %v, want not_found", err)
	}
}

func TestCache_ConcurrentFirstResolution(t *testing.T) {
	r := newFake()
	r.gate = make(chan struct{})
	c := NewCache(r)

	const n = 32
	results := make([]Target, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tgt, err := c.Resolve(context.Background(), addChild)
			if err != nil {
				t.Error(err)
			}
			results[i] = tgt
		}(i)
	}
	close(r.gate)
	wg.Wait()

	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
	if r.calls.Load() > int64(n) || c.Len() != 1 {
		t.Fatalf("calls = %d, Len = %d", r.calls.Load(), c.Len())
	}
}

func TestCache_FailuresNotCached(t *testing.T) {
	r := newFake()
	c := NewCache(r)
	ctx := context.Background()

	if _, err := c.Resolve(ctx, missing); err == nil {
		t.Fatal("expected failure")
	}
	r.known[missing] = true
	if _, err := c.Resolve(ctx, missing); err != nil {
		t.Fatalf("second attempt after engine gained member: %v", err)
	}
	if r.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", r.calls.Load())
	}
}

func TestCache_WrapsForeignErrors(t *testing.T) {
	boom := fmt.Errorf("engine exploded")
	r := newFake()
	r.failing = map[Token]error{getName: boom}
	c := NewCache(r)

	_, err := c.Resolve(context.Background(), getName)
	if !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseResolve {
		t.Fatalf("err = %#v, want resolve phase error", err)
	}
}

func TestCache_NilTarget(t *testing.T) {
	c := NewCache(ResolverFunc(func(ctx context.Context, tok Token) (Target, error) {
		return nil, nil
	}))
	if _, err := c.Resolve(context.Background(), addChild); errors.KindOf(err) != errors.KindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestCache_MustResolvePanics(t *testing.T) {
	c := NewCache(newFake())

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("MustResolve did not panic")
		}
		err, ok := r.(error)
		if !ok || errors.KindOf(err) != errors.KindNotFound {
			t.Fatalf("panic value = %v", r)
		}
	}()
	c.MustResolve(context.Background(), missing)
}

func TestCache_ResolveClass(t *testing.T) {
	c := NewCache(newFake())
	ctx := context.Background()

	targets, err := c.ResolveClass(ctx, []Token{addChild, getName})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 || targets[0] == nil || targets[1] == nil {
		t.Fatalf("targets = %v", targets)
	}

	other := Token{Class: "Node", Member: "fly", Hash: 9}
	_, err = c.ResolveClass(ctx, []Token{addChild, missing, other})
	var mbe *errors.MissingBindsError
	if !stderrors.As(err, &mbe) {
		t.Fatalf("err = %v, want MissingBindsError", err)
	}
	if len(mbe.Binds) != 2 || mbe.Binds[0].Member != "teleport" || mbe.Binds[1].Member != "fly" {
		t.Fatalf("missing = %+v", mbe.Binds)
	}
}

func TestCache_ResolveClassCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCache(ResolverFunc(func(ctx context.Context, tok Token) (Target, error) {
		return nil, ctx.Err()
	}))
	if _, err := c.ResolveClass(ctx, []Token{addChild}); !stderrors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCache_Forget(t *testing.T) {
	r := newFake()
	c := NewCache(r)
	ctx := context.Background()
	c.Resolve(ctx, addChild)
	c.Forget(addChild)
	c.Resolve(ctx, addChild)
	if r.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", r.calls.Load())
	}
}

func TestTargetFunc(t *testing.T) {
	var gotSelf uint64
	tgt := TargetFunc(func(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error) {
		gotSelf = self
		return args[0], nil
	})
	v, err := tgt.Call(context.Background(), 7, []variant.Variant{variant.NewInt(3)})
	if err != nil || gotSelf != 7 || !v.Equal(variant.NewInt(3)) {
		t.Fatalf("Call = %v, %v (self %d)", v, err, gotSelf)
	}
}

func TestToken_String(t *testing.T) {
	if got := addChild.String(); got != "Node.add_child#1" {
		t.Errorf("String = %q", got)
	}
}
