package strpool

import (
	"bytes"
	"fmt"
	"unsafe"
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
)

// slot is one position of the set. An occupied slot may link to the next slot of its chain
type slot struct {
	ref     Ref
	hash    uint32
	next    uint32
	hasNext bool
	state   slotState
}

const slotSize = int(unsafe.Sizeof(slot{}))

// placement is where a new entry goes and which slot must link to it
type placement struct {
	index  uint32
	tail   uint32
	linked bool // false when the entry starts its own chain at its home bucket
	cellar bool
}

// Set is a coalesced hash set with a cellar. Entries are Refs into src; all collision chains
// live in the one slots array, and colliding entries are taken from the cellar at the top of
// the array first, then by linear probing of the table region.
type Set struct {
	slots []slot

	capacity       uint32
	tableCapacity  uint32
	cellarCapacity uint32

	size       uint32 // occupied slots, table and cellar
	cellarFree uint32 // unused cellar slots, handed out from the top down

	loadFactor  float64
	cellarRatio float64
	maxCapacity uint64

	hash     HashFunc
	src      *Buffer
	budget   *MemoryBudget
	observer Observer

	rehashes         int64
	collisions       int64
	cellarPlacements int64
	probePlacements  int64
}

// splitCapacity returns floor(capacity*ratio) cellar slots and the rest as table
func splitCapacity(capacity int, ratio float64) (cellar, table int) {
	cellar = int(float64(capacity) * ratio)
	return cellar, capacity - cellar
}

func newSet(src *Buffer, cfg Config) (*Set, error) {
	s := &Set{
		loadFactor:  cfg.LoadFactor,
		cellarRatio: cfg.CellarRatio,
		maxCapacity: cfg.MaxSetCapacity,
		hash:        cfg.Hash,
		src:         src,
		budget:      cfg.Budget,
		observer:    cfg.Observer,
	}
	slots, err := s.allocSlots(cfg.SetCapacity)
	if err != nil {
		return nil, err
	}
	s.reset(slots)
	return s, nil
}

func (s *Set) allocSlots(capacity int) ([]slot, error) {
	n := int64(capacity) * int64(slotSize)
	if err := s.budget.Acquire(n); err != nil {
		return nil, err
	}
	slots, err := allocSlice[slot](capacity)
	if err != nil {
		s.budget.Release(n)
		return nil, err
	}
	return slots, nil
}

// reset installs slots (all empty) and recomputes the table/cellar split
func (s *Set) reset(slots []slot) {
	cellar, table := splitCapacity(len(slots), s.cellarRatio)
	s.slots = slots
	s.capacity = uint32(len(slots))
	s.cellarCapacity = uint32(cellar)
	s.tableCapacity = uint32(table)
	s.cellarFree = s.cellarCapacity
	s.size = 0
}

func (s *Set) home(hash uint32) uint32 {
	return hash % s.tableCapacity
}

// Len returns the number of entries
func (s *Set) Len() int { return int(s.size) }

// Get returns the ref stored for key, walking the chain that starts at key's home bucket
func (s *Set) Get(key []byte) (Ref, bool) {
	if key == nil || len(s.slots) == 0 {
		return Ref{}, false
	}
	return s.get(key, s.hash(key))
}

// Contains reports whether key has an entry
func (s *Set) Contains(key []byte) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *Set) get(key []byte, hash uint32) (Ref, bool) {
	i := s.home(hash)
	if s.slots[i].state == slotEmpty {
		return Ref{}, false
	}
	for {
		sl := &s.slots[i]
		if sl.hash == hash && bytes.Equal(s.src.View(sl.ref), key) {
			return sl.ref, true
		}
		if !sl.hasNext {
			return Ref{}, false
		}
		i = sl.next
	}
}

// FindOrInsert returns the existing ref for key, or appends key to the buffer and records it
func (s *Set) FindOrInsert(key []byte) (ref Ref, found bool, err error) {
	if key == nil {
		return Ref{}, false, fmt.Errorf("%w: nil content", ErrInvalidArgument)
	}
	hash := s.hash(key)
	if ref, ok := s.get(key, hash); ok {
		return ref, true, nil
	}
	p, err := s.reserve(hash)
	if err != nil {
		return Ref{}, false, err
	}
	ref, err = s.src.Append(key)
	if err != nil {
		return Ref{}, false, err
	}
	s.commit(p, ref, hash)
	return ref, false, nil
}

func (s *Set) overloaded() bool {
	return float64(s.size) > float64(s.capacity)*s.loadFactor
}

// reserve finds the slot for a new entry with the given hash, growing the set first if it
// is over its load factor. Nothing is modified apart from a possible rehash.
func (s *Set) reserve(hash uint32) (placement, error) {
	if s.overloaded() {
		if err := s.rehash(); err != nil {
			return placement{}, err
		}
	}
	if p, ok := s.place(hash); ok {
		return p, nil
	}

	s.observer.Observe(Event{
		Kind:        EventPlacementFailed,
		OldCapacity: int(s.capacity),
		NewCapacity: int(s.capacity),
		Size:        int(s.size),
		LoadFactor:  s.loadFactor,
	})
	s.loadFactor = DefaultLoadFactor
	if err := s.rehash(); err != nil {
		return placement{}, fmt.Errorf("%w: %w", ErrSetFull, err)
	}
	if p, ok := s.place(hash); ok {
		return p, nil
	}
	return placement{}, fmt.Errorf("%w: %d of %d slots used after rehash", ErrSetFull, s.size, s.capacity)
}

// place picks a free slot for hash: the home bucket, else the next cellar slot, else the
// first empty table slot after home. It fails only when the table region is full and the
// cellar is used up.
func (s *Set) place(hash uint32) (placement, bool) {
	home := s.home(hash)
	if s.slots[home].state == slotEmpty {
		return placement{index: home}, true
	}

	tail := home
	for s.slots[tail].hasNext {
		tail = s.slots[tail].next
	}

	if s.cellarFree > 0 {
		return placement{index: s.tableCapacity + s.cellarFree - 1, tail: tail, linked: true, cellar: true}, true
	}

	for i := (home + 1) % s.tableCapacity; i != home; i = (i + 1) % s.tableCapacity {
		if s.slots[i].state == slotEmpty {
			return placement{index: i, tail: tail, linked: true}, true
		}
	}
	return placement{}, false
}

func (s *Set) commit(p placement, ref Ref, hash uint32) {
	s.slots[p.index] = slot{ref: ref, hash: hash, state: slotOccupied}
	if p.linked {
		t := &s.slots[p.tail]
		t.next, t.hasNext = p.index, true
		s.collisions++
		if p.cellar {
			s.cellarFree--
			s.cellarPlacements++
		} else {
			s.probePlacements++
		}
	}
	s.size++
}

// rehash doubles the capacity and reinserts every entry by its stored hash. On failure
// the previous table is left in place.
func (s *Set) rehash() error {
	oldCapacity := uint64(s.capacity)
	newCapacity := oldCapacity << 1
	if newCapacity > s.maxCapacity {
		newCapacity = s.maxCapacity
	}
	if newCapacity <= oldCapacity {
		return fmt.Errorf("%w: set already holds %d slots", ErrCapacityExceeded, oldCapacity)
	}

	slots, err := s.allocSlots(int(newCapacity))
	if err != nil {
		return err
	}

	old := *s
	s.reset(slots)
	for i := range old.slots {
		sl := &old.slots[i]
		if sl.state != slotOccupied {
			continue
		}
		p, ok := s.place(sl.hash)
		if !ok {
			s.budget.Release(int64(len(slots)) * int64(slotSize))
			*s = old
			return fmt.Errorf("%w: reinsertion into %d slots failed", ErrSetFull, newCapacity)
		}
		s.commit(p, sl.ref, sl.hash)
	}
	s.collisions = old.collisions
	s.cellarPlacements = old.cellarPlacements
	s.probePlacements = old.probePlacements
	s.budget.Release(int64(len(old.slots)) * int64(slotSize))
	s.rehashes++

	s.observer.Observe(Event{
		Kind:        EventRehash,
		OldCapacity: int(oldCapacity),
		NewCapacity: int(s.capacity),
		Size:        int(s.size),
		LoadFactor:  s.loadFactor,
	})
	return nil
}

func (s *Set) release() {
	s.budget.Release(int64(len(s.slots)) * int64(slotSize))
	s.slots = nil
	s.size = 0
}
