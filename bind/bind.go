// Package bind resolves method bind tokens to callable native targets and
// caches the result.
//
// A Token names a native member by class, member name and signature hash.
// The Cache resolves each token through a Resolver (an engine backend) at
// most once and returns the same Target for it afterwards:
//
//	cache := bind.NewCache(backend)
//	target := cache.MustResolve(ctx, bind.Token{Class: "Node", Member: "add_child", Hash: h})
//	ret, err := target.Call(ctx, self, args)
//
// Resolution failures are not cached. MustResolve panics on failure since a
// binding that does not match its engine build cannot be used at all;
// ResolveClass reports every missing member of a class at once.
package bind

import (
	"context"
	"strconv"

	"github.com/wippyai/nativebind/variant"
)

// Token identifies a native member.
type Token struct {
	Class  string
	Member string
	Hash   uint64
}

func (t Token) String() string {
	return t.Class + "." + t.Member + "#" + strconv.FormatUint(t.Hash, 16)
}

// Target is a resolved native member.
type Target interface {
	Call(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error)
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error)

func (f TargetFunc) Call(ctx context.Context, self uint64, args []variant.Variant) (variant.Variant, error) {
	return f(ctx, self, args)
}

// Resolver looks up native members. Engine backends implement it.
type Resolver interface {
	Resolve(ctx context.Context, tok Token) (Target, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, tok Token) (Target, error)

func (f ResolverFunc) Resolve(ctx context.Context, tok Token) (Target, error) {
	return f(ctx, tok)
}
