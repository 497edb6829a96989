// Package signal connects managed handlers to native signals.
//
// A Hub keeps the subscriptions of every (object, signal) pair. The first
// connection of a pair is mirrored to the engine through a Mirror so that
// the engine starts forwarding emissions, and the last disconnection is
// mirrored so that it stops. Emit delivers a native emission to every
// handler of the pair in subscription order.
//
// Every handler declares its arity. An emission whose argument count does
// not match fails before any handler runs.
//
// Go functions cannot be compared, so a subscription is identified by the
// Connection returned from Connect. Disconnecting it removes exactly that
// subscription; disconnecting it twice reports not_found.
package signal

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/variant"
)

// Handler receives the arguments of one emission.
type Handler func(ctx context.Context, args []variant.Variant) error

// Mirror forwards subscription changes to the engine. Implementations must
// not call back into the Hub.
type Mirror interface {
	ConnectSignal(ctx context.Context, obj uint64, signal string) error
	DisconnectSignal(ctx context.Context, obj uint64, signal string) error
}

// Connection identifies one subscription.
type Connection struct {
	Signal string
	Object uint64
	ID     uint64
}

func (c Connection) Valid() bool { return c.ID != 0 }

type key struct {
	signal string
	obj    uint64
}

type subscription struct {
	handler Handler
	id      uint64
	arity   int
}

// Hub holds signal subscriptions. It is safe for concurrent use.
type Hub struct {
	mirror Mirror
	logger *zap.Logger
	subs   map[key][]*subscription
	byID   map[uint64]key
	nextID uint64
	mu     sync.Mutex
}

// Option configures a Hub.
type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a Hub. A nil mirror keeps subscriptions local.
func NewHub(m Mirror, opts ...Option) *Hub {
	h := &Hub{
		mirror: m,
		logger: zap.NewNop(),
		subs:   make(map[key][]*subscription),
		byID:   make(map[uint64]key),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect subscribes fn to signal on obj. fn is called only with exactly
// arity arguments.
func (h *Hub) Connect(ctx context.Context, obj uint64, signal string, arity int, fn Handler) (Connection, error) {
	if fn == nil || signal == "" || arity < 0 {
		return Connection{}, errors.InvalidInput(errors.PhaseSignal, "connect needs a signal name, a handler and a non-negative arity")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	k := key{obj: obj, signal: signal}
	if len(h.subs[k]) == 0 && h.mirror != nil {
		if err := h.mirror.ConnectSignal(ctx, obj, signal); err != nil {
			return Connection{}, errors.New(errors.PhaseSignal, errors.KindRegistration).
				Path(signal).Value(obj).Cause(err).Detail("engine refused connection").Build()
		}
		h.logger.Debug("signal mirrored", zap.Uint64("object", obj), zap.String("signal", signal))
	}

	h.nextID++
	sub := &subscription{id: h.nextID, arity: arity, handler: fn}
	h.subs[k] = append(h.subs[k], sub)
	h.byID[sub.id] = k
	return Connection{Object: obj, Signal: signal, ID: sub.id}, nil
}

// Disconnect removes the subscription c.
func (h *Hub) Disconnect(ctx context.Context, c Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	k, ok := h.byID[c.ID]
	if !ok || k.obj != c.Object || k.signal != c.Signal {
		return errors.NotFound(errors.PhaseSignal, "connection", c.Signal)
	}
	delete(h.byID, c.ID)

	subs := h.subs[k]
	for i, s := range subs {
		if s.id == c.ID {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) > 0 {
		h.subs[k] = subs
		return nil
	}

	if h.mirror != nil {
		// The subscription stays until the engine lets go of the pair.
		if err := h.mirror.DisconnectSignal(ctx, k.obj, k.signal); err != nil {
			h.byID[c.ID] = k
			return errors.New(errors.PhaseSignal, errors.KindRegistration).
				Path(k.signal).Value(k.obj).Cause(err).Detail("engine refused disconnection").Build()
		}
	}
	delete(h.subs, k)
	return nil
}

// Emit runs the handlers of signal on obj in subscription order. Handlers
// connected or disconnected during the emission do not affect it. The
// first handler error stops the emission and is returned.
func (h *Hub) Emit(ctx context.Context, obj uint64, signal string, args []variant.Variant) error {
	h.mu.Lock()
	snapshot := append([]*subscription(nil), h.subs[key{obj: obj, signal: signal}]...)
	h.mu.Unlock()

	for _, s := range snapshot {
		if s.arity != len(args) {
			return errors.ArityMismatch(errors.PhaseSignal, signal, s.arity, len(args))
		}
	}
	for _, s := range snapshot {
		if err := s.handler(ctx, args); err != nil {
			h.logger.Debug("signal handler failed",
				zap.Uint64("object", obj), zap.String("signal", signal), zap.Error(err))
			return err
		}
	}
	return nil
}

// Count returns the number of subscriptions of signal on obj.
func (h *Hub) Count(obj uint64, signal string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key{obj: obj, signal: signal}])
}

// Total returns the number of subscriptions across all objects.
func (h *Hub) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byID)
}

// DisconnectObject removes every subscription on obj and mirrors the
// disconnection of each of its signals. It is used when the managed side
// lets go of an object the engine keeps alive. Mirror errors are joined;
// the local subscriptions are removed regardless.
func (h *Hub) DisconnectObject(ctx context.Context, obj uint64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	var errs []error
	for k, subs := range h.subs {
		if k.obj != obj {
			continue
		}
		for _, s := range subs {
			delete(h.byID, s.id)
		}
		n += len(subs)
		delete(h.subs, k)
		if h.mirror == nil {
			continue
		}
		if err := h.mirror.DisconnectSignal(ctx, k.obj, k.signal); err != nil {
			errs = append(errs, errors.New(errors.PhaseSignal, errors.KindRegistration).
				Path(k.signal).Value(k.obj).Cause(err).Detail("engine refused disconnection").Build())
		}
	}
	return n, stderrors.Join(errs...)
}

// DropObject removes every subscription on obj without telling the engine.
// It is used when the engine has freed obj.
func (h *Hub) DropObject(obj uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for k, subs := range h.subs {
		if k.obj != obj {
			continue
		}
		for _, s := range subs {
			delete(h.byID, s.id)
		}
		n += len(subs)
		delete(h.subs, k)
	}
	return n
}
