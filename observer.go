package strpool

// EventKind identifies what a pool reports to its Observer
type EventKind int

const (
	// EventRehash is sent after the set has been rebuilt with a larger capacity
	EventRehash EventKind = iota
	// EventBufferGrow is sent after the backing buffer has been reallocated
	EventBufferGrow
	// EventPlacementFailed is sent when no free slot existed for a new entry. The load factor
	// is reset to DefaultLoadFactor and the insert retried once after a rehash
	EventPlacementFailed
)

func (k EventKind) String() string {
	switch k {
	case EventRehash:
		return "rehash"
	case EventBufferGrow:
		return "buffer_grow"
	case EventPlacementFailed:
		return "placement_failed"
	}
	return "unknown"
}

// Event describes a growth or degenerate-state occurrence inside a pool
type Event struct {
	Kind EventKind

	// OldCapacity and NewCapacity are slots for set events and bytes for buffer events
	OldCapacity int
	NewCapacity int

	// Size is the number of entries in the set (or bytes in the buffer) when the event fired
	Size int

	// LoadFactor is the load factor in effect before the event
	LoadFactor float64
}

// Observer receives pool events. It is called synchronously from the inserting goroutine
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
