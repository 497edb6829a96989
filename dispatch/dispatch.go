// Package dispatch routes virtual calls from the native engine to managed
// overrides.
//
// Each class registers an Entry per virtual member. When the engine asks
// an object of class C to run member M, the Dispatcher walks C's ancestry
// from most derived to root and picks the first level that registered M
// and whose Overridden predicate accepts the managed value. The argument
// count is checked against that entry before anything runs. If no level
// claims the call the Result reports Handled == false and the engine runs
// its default behavior.
//
// The typed helpers (Method0..Method3, Func0..Func2) build entries from
// optional Go interfaces: a managed value overrides a member exactly when
// it implements the interface.
package dispatch

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// Handler runs a managed override.
type Handler func(ctx context.Context, self any, args []variant.Variant) (variant.Variant, error)

// Entry is one virtual member of a class.
type Entry struct {
	// Overridden reports whether self implements the member. Nil means
	// always.
	Overridden func(self any) bool
	Invoke     Handler
	Member     string
	Arity      int
}

// Ancestry lists a class followed by its ancestors, root last.
type Ancestry interface {
	Ancestors(class string) []string
}

// Result of a dispatch. Class is the level whose entry ran.
type Result struct {
	Value   variant.Variant
	Class   string
	Handled bool
}

// Dispatcher holds per-class virtual tables. Registration and dispatch are
// safe for concurrent use.
type Dispatcher struct {
	ancestry Ancestry
	logger   *zap.Logger
	tables   map[string]map[string]Entry
	mu       sync.RWMutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher. A nil ancestry treats every class as a root.
func New(a Ancestry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ancestry: a,
		logger:   zap.NewNop(),
		tables:   make(map[string]map[string]Entry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds entries to class. Registering a member twice for the same
// class fails and leaves the table unchanged.
func (d *Dispatcher) Register(class string, entries ...Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	table := d.tables[class]
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Member == "" || e.Invoke == nil {
			return errors.Registration(errors.PhaseDispatch, class, e.Member,
				errors.InvalidInput(errors.PhaseDispatch, "entry needs a member name and a handler"))
		}
		if e.Arity < 0 {
			return errors.Registration(errors.PhaseDispatch, class, e.Member,
				errors.InvalidInput(errors.PhaseDispatch, "negative arity"))
		}
		if _, dup := table[e.Member]; dup || seen[e.Member] {
			return errors.Duplicate(errors.PhaseDispatch, "virtual", class+"."+e.Member)
		}
		seen[e.Member] = true
	}

	if table == nil {
		table = make(map[string]Entry, len(entries))
		d.tables[class] = table
	}
	for _, e := range entries {
		table[e.Member] = e
	}
	return nil
}

func (d *Dispatcher) chain(class string) []string {
	if d.ancestry != nil {
		if c := d.ancestry.Ancestors(class); len(c) > 0 {
			return c
		}
	}
	return []string{class}
}

func (d *Dispatcher) lookup(class, member string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.tables[class][member]
	return e, ok
}

// Dispatch runs member on self, an instance of class.
func (d *Dispatcher) Dispatch(ctx context.Context, class string, self any, member string, args []variant.Variant) (Result, error) {
	for _, level := range d.chain(class) {
		e, ok := d.lookup(level, member)
		if !ok {
			continue
		}
		if e.Overridden != nil && !e.Overridden(self) {
			continue
		}
		if len(args) != e.Arity {
			return Result{}, errors.ArityMismatch(errors.PhaseDispatch, level+"."+member, e.Arity, len(args))
		}

		v, err := e.Invoke(ctx, self, args)
		if err != nil {
			d.logger.Debug("virtual call failed",
				zap.String("class", class), zap.String("level", level),
				zap.String("member", member), zap.Error(err))
			return Result{Handled: true, Class: level}, err
		}
		return Result{Handled: true, Value: v, Class: level}, nil
	}
	return Result{}, nil
}

// Has reports whether any level of class registered member, regardless of
// whether a particular instance overrides it.
func (d *Dispatcher) Has(class, member string) bool {
	for _, level := range d.chain(class) {
		if _, ok := d.lookup(level, member); ok {
			return true
		}
	}
	return false
}

// Members returns the members registered directly on class, sorted.
func (d *Dispatcher) Members(class string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.tables[class]))
	for m := range d.tables[class] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
