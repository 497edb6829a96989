package bind

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/nativebind/errors"
)

// Cache memoizes token resolution. It is safe for concurrent use.
type Cache struct {
	resolver Resolver
	logger   *zap.Logger
	targets  map[Token]Target
	group    singleflight.Group
	lookups  atomic.Int64
	mu       sync.RWMutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for resolution events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCache(r Resolver, opts ...Option) *Cache {
	c := &Cache{
		resolver: r,
		logger:   zap.NewNop(),
		targets:  make(map[Token]Target),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the Target for tok, asking the Resolver only on the first
// successful lookup. Concurrent first lookups of one token share a single
// resolution.
func (c *Cache) Resolve(ctx context.Context, tok Token) (Target, error) {
	c.mu.RLock()
	t, ok := c.targets[tok]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do(tok.String(), func() (any, error) {
		c.mu.RLock()
		t, ok := c.targets[tok]
		c.mu.RUnlock()
		if ok {
			return t, nil
		}

		c.lookups.Add(1)
		t, err := c.resolver.Resolve(ctx, tok)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, errors.NotFound(errors.PhaseResolve, "method bind", tok.String())
		}

		c.mu.Lock()
		c.targets[tok] = t
		c.mu.Unlock()
		c.logger.Debug("method bind resolved", zap.Stringer("token", tok))
		return t, nil
	})
	if err != nil {
		c.logger.Warn("method bind resolution failed", zap.Stringer("token", tok), zap.Error(err))
		return nil, wrapResolve(tok, err)
	}
	return v.(Target), nil
}

// MustResolve is Resolve that panics with the resolution error.
func (c *Cache) MustResolve(ctx context.Context, tok Token) Target {
	t, err := c.Resolve(ctx, tok)
	if err != nil {
		panic(err)
	}
	return t
}

// ResolveClass resolves every token and returns the targets in token order.
// If any token fails the result is a *errors.MissingBindsError listing all
// of them.
func (c *Cache) ResolveClass(ctx context.Context, toks []Token) ([]Target, error) {
	out := make([]Target, len(toks))
	var missing []errors.MissingBind
	for i, tok := range toks {
		t, err := c.Resolve(ctx, tok)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			missing = append(missing, errors.MissingBind{Class: tok.Class, Member: tok.Member, Hash: tok.Hash})
			continue
		}
		out[i] = t
	}
	if len(missing) > 0 {
		return nil, &errors.MissingBindsError{Binds: missing}
	}
	return out, nil
}

// Len returns the number of cached targets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.targets)
}

// Lookups returns how many times the Resolver has been asked.
func (c *Cache) Lookups() int64 {
	return c.lookups.Load()
}

// Forget drops a cached target so the next Resolve asks the Resolver again.
func (c *Cache) Forget(tok Token) {
	c.mu.Lock()
	delete(c.targets, tok)
	c.mu.Unlock()
}

func wrapResolve(tok Token, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Phase == errors.PhaseResolve {
		return err
	}
	return errors.New(errors.PhaseResolve, errors.KindNotFound).
		Path(tok.Class, tok.Member).Value(tok.Hash).Cause(err).
		Detail("cannot resolve %s", tok).Build()
}
