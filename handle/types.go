package handle

// Handle identifies a wrapper's entry in a Table. Handle 0 is invalid.
type Handle uint32

// Ownership describes who is responsible for the native object.
type Ownership uint8

const (
	Borrowed Ownership = iota
	Owned
	Shared
)

func (o Ownership) String() string {
	switch o {
	case Borrowed:
		return "borrowed"
	case Owned:
		return "owned"
	case Shared:
		return "shared"
	}
	return "unknown"
}

// Disposition is the native-side action required after a Release.
type Disposition uint8

const (
	// Keep: other references remain, nothing to do.
	Keep Disposition = iota
	// Destroy: the object was Owned, destroy it.
	Destroy
	// Unreference: the last Shared reference is gone, drop the engine count.
	Unreference
	// Forget: Borrowed or already freed by the engine.
	Forget
)

func (d Disposition) String() string {
	switch d {
	case Keep:
		return "keep"
	case Destroy:
		return "destroy"
	case Unreference:
		return "unreference"
	case Forget:
		return "forget"
	}
	return "unknown"
}

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventReleased
	EventFreed
)

// Event describes a change to a table entry.
type Event struct {
	Value       any
	Class       string
	Ptr         uint64
	Handle      Handle
	Refs        int32
	Type        EventType
	Disposition Disposition
}

// Observer receives handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// Checker reports whether a native pointer still refers to a live object.
type Checker interface {
	Alive(ptr uint64) bool
}

// Info is a snapshot of an entry.
type Info struct {
	Value     any
	Class     string
	Ptr       uint64
	Refs      int32
	Ownership Ownership
	Freed     bool
}
