package handle

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/nativebind/errors"
)

type entry struct {
	value     any
	class     string
	ptr       uint64
	refs      atomic.Int32
	ownership Ownership
	freed     bool
	valid     bool
}

func (e *entry) info() Info {
	return Info{
		Value:     e.value,
		Class:     e.class,
		Ptr:       e.ptr,
		Refs:      e.refs.Load(),
		Ownership: e.ownership,
		Freed:     e.freed,
	}
}

// Table maps handles to native objects. It is safe for concurrent use.
type Table struct {
	checker   Checker
	byPtr     map[uint64]Handle
	entries   []*entry
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// Option configures a Table.
type Option func(*Table)

// WithChecker enables liveness checks for Borrowed handles.
func WithChecker(c Checker) Option {
	return func(t *Table) { t.checker = c }
}

func NewTable(opts ...Option) *Table {
	t := &Table{
		entries:  make([]*entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		byPtr:    make(map[uint64]Handle),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Insert registers a native object. Shared entries start with one
// reference. A pointer can be registered only once while it is live.
func (t *Table) Insert(ptr uint64, class string, ownership Ownership, value any) (Handle, error) {
	if ptr == 0 {
		return 0, errors.NilPointer(errors.PhaseHandle, []string{class}, "native object")
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, errors.NotInitialized(errors.PhaseHandle, "handle table")
	}
	if _, exists := t.byPtr[ptr]; exists {
		t.mu.Unlock()
		return 0, errors.New(errors.PhaseHandle, errors.KindDuplicate).
			Path(class).Detail("native object 0x%x already wrapped", ptr).Build()
	}

	e := &entry{
		value:     value,
		class:     class,
		ptr:       ptr,
		ownership: ownership,
		valid:     true,
	}
	if ownership == Shared {
		e.refs.Store(1)
	}

	var h Handle
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.byPtr[ptr] = h
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Ptr: ptr, Class: class, Value: value, Refs: e.refs.Load()})
	return h, nil
}

// get returns the live entry for h. Caller holds mu.
func (t *Table) get(h Handle) *entry {
	if h == 0 || int(h) > len(t.entries) {
		return nil
	}
	e := t.entries[h-1]
	if e == nil || !e.valid {
		return nil
	}
	return e
}

func invalid(h Handle) error {
	return errors.New(errors.PhaseHandle, errors.KindFreedHandle).
		Value(h).Detail("handle %d is not live", h).Build()
}

// Resolve returns the native pointer for h. Released handles, objects the
// engine freed, and Borrowed objects the Checker reports dead all fail with
// a freed_handle error.
func (t *Table) Resolve(h Handle) (uint64, error) {
	t.mu.RLock()
	e := t.get(h)
	if e == nil {
		t.mu.RUnlock()
		return 0, invalid(h)
	}
	ptr, class, freed, own := e.ptr, e.class, e.freed, e.ownership
	t.mu.RUnlock()

	if freed {
		return 0, errors.FreedHandle(ptr, class)
	}
	if own == Borrowed && t.checker != nil && !t.checker.Alive(ptr) {
		return 0, errors.FreedHandle(ptr, class)
	}
	return ptr, nil
}

// Info returns a snapshot of the entry for h.
func (t *Table) Info(h Handle) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.get(h)
	if e == nil {
		return Info{}, false
	}
	return e.info(), true
}

// Value returns the managed value attached to h.
func (t *Table) Value(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.get(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// Lookup finds the handle wrapping ptr. Objects marked freed are not found.
func (t *Table) Lookup(ptr uint64) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byPtr[ptr]
	return h, ok
}

// Retain adds a reference to a Shared handle.
func (t *Table) Retain(h Handle) error {
	t.mu.RLock()
	e := t.get(h)
	if e == nil {
		t.mu.RUnlock()
		return invalid(h)
	}
	if e.freed {
		t.mu.RUnlock()
		return errors.FreedHandle(e.ptr, e.class)
	}
	if e.ownership != Shared {
		t.mu.RUnlock()
		return errors.New(errors.PhaseHandle, errors.KindInvalidInput).
			Path(e.class).Detail("retain on %s handle", e.ownership).Build()
	}
	refs := e.refs.Add(1)
	ev := Event{Type: EventRetained, Handle: h, Ptr: e.ptr, Class: e.class, Value: e.value, Refs: refs}
	t.mu.RUnlock()

	t.notify(ev)
	return nil
}

// Release drops one reference. The entry is removed when no reference
// remains, and the returned Disposition names the native-side action.
func (t *Table) Release(h Handle) (Disposition, error) {
	t.mu.Lock()
	e := t.get(h)
	if e == nil {
		t.mu.Unlock()
		return Forget, invalid(h)
	}

	var d Disposition
	switch e.ownership {
	case Borrowed:
		d = Forget
	case Owned:
		d = Destroy
	case Shared:
		if e.refs.Add(-1) > 0 {
			d = Keep
		} else {
			d = Unreference
		}
	}
	if d != Keep && e.freed {
		d = Forget
	}
	if d != Keep {
		t.remove(h, e)
	}
	ev := Event{Type: EventReleased, Handle: h, Ptr: e.ptr, Class: e.class, Value: e.value, Refs: e.refs.Load(), Disposition: d}
	t.mu.Unlock()

	t.notify(ev)
	return d, nil
}

// Evict drops every reference of h, but only while h still holds value.
// It returns a snapshot of the entry taken before removal and the
// native-side action; ok is false when h is gone or holds another value,
// in which case nothing changes. value must be comparable.
func (t *Table) Evict(h Handle, value any) (Info, Disposition, bool) {
	t.mu.Lock()
	e := t.get(h)
	if e == nil || e.value != value {
		t.mu.Unlock()
		return Info{}, Keep, false
	}
	info := e.info()

	var d Disposition
	switch e.ownership {
	case Borrowed:
		d = Forget
	case Owned:
		d = Destroy
	case Shared:
		e.refs.Store(0)
		d = Unreference
	}
	if e.freed {
		d = Forget
	}
	t.remove(h, e)
	ev := Event{Type: EventReleased, Handle: h, Ptr: e.ptr, Class: e.class, Value: e.value, Disposition: d}
	t.mu.Unlock()

	t.notify(ev)
	return info, d, true
}

// remove frees the slot. Caller holds mu.
func (t *Table) remove(h Handle, e *entry) {
	if cur, ok := t.byPtr[e.ptr]; ok && cur == h {
		delete(t.byPtr, e.ptr)
	}
	e.valid = false
	t.entries[h-1] = nil
	t.freeList = append(t.freeList, h)
}

// MarkFreed records that the engine freed ptr. The entry stays in the table
// so later use fails fast; it is removed on its final Release.
func (t *Table) MarkFreed(ptr uint64) (Handle, bool) {
	t.mu.Lock()
	h, ok := t.byPtr[ptr]
	if !ok {
		t.mu.Unlock()
		return 0, false
	}
	e := t.entries[h-1]
	e.freed = true
	delete(t.byPtr, ptr)
	ev := Event{Type: EventFreed, Handle: h, Ptr: ptr, Class: e.class, Value: e.value, Refs: e.refs.Load()}
	t.mu.Unlock()

	t.notify(ev)
	return h, true
}

// Len returns the number of live entries, including entries marked freed
// that have not been released yet.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Each calls fn for every live entry until fn returns false. fn must not
// call back into the table.
func (t *Table) Each(fn func(Handle, Info) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i, e := range t.entries {
		if e != nil && e.valid {
			if !fn(Handle(i+1), e.info()) {
				return
			}
		}
	}
}

// Handles returns every live handle in slot order.
func (t *Table) Handles() []Handle {
	var out []Handle
	t.Each(func(h Handle, _ Info) bool {
		out = append(out, h)
		return true
	})
	return out
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close drops every entry without notifying observers and rejects further
// inserts. Callers release native objects first.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, e := range t.entries {
		if e != nil {
			e.valid = false
		}
	}
	t.entries = nil
	t.freeList = nil
	t.byPtr = make(map[uint64]Handle)
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnHandleEvent(e)
	}
}
