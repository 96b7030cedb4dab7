package strpool

import (
	"fmt"
	"unsafe"
)

// Pool interns strings into one owned buffer and hands out a Ref per distinct content.
// Equal content always yields the same Ref. A Pool is not safe for concurrent use, wrap it
// in a SyncPool or give each goroutine its own.
type Pool struct {
	buf *Buffer
	set *Set

	closed bool
	stats  Statistics
}

// Statistics are counters kept by a pool plus a snapshot of its geometry
type Statistics struct {
	ItemsAdded,
	BytesInMemory,
	ItemsSaved,
	BytesSaved,
	Collisions,
	CellarPlacements,
	ProbePlacements,
	Rehashes,
	BufferGrowths int64

	BufferSize,
	BufferCapacity,
	SetCapacity,
	TableCapacity,
	CellarCapacity,
	CellarFree int

	LoadFactor,
	CellarRatio float64
}

// New allocates a pool with the default sizes, adjusted by opts
func New(opts ...Option) (*Pool, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig allocates a pool from a complete Config
func NewWithConfig(cfg Config) (*Pool, error) {
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	buf, err := newBuffer(cfg.BufferCapacity, cfg.MaxBufferSize, cfg.Budget, cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("allocating buffer: %w", err)
	}
	set, err := newSet(buf, cfg)
	if err != nil {
		buf.release()
		return nil, fmt.Errorf("allocating set: %w", err)
	}
	return &Pool{buf: buf, set: set}, nil
}

// stringKey turns s into lookup bytes without copying. The empty string must not become nil,
// which would read as an absent argument
func stringKey(s string) []byte {
	if b := castStringToBytes(s); b != nil {
		return b
	}
	return []byte{}
}

// Intern returns the Ref of s, storing a copy of s if this content has not been seen before
func (p *Pool) Intern(s string) (Ref, error) {
	return p.intern(stringKey(s))
}

// InternBytes is Intern for a byte slice. A nil slice is rejected with ErrInvalidArgument
func (p *Pool) InternBytes(b []byte) (Ref, error) {
	if b == nil {
		return Ref{}, fmt.Errorf("%w: nil content", ErrInvalidArgument)
	}
	return p.intern(b)
}

// InternPrefix interns the first n bytes of b. b need not be terminated and may continue past n
func (p *Pool) InternPrefix(b []byte, n int) (Ref, error) {
	if b == nil || n < 0 || n > len(b) {
		return Ref{}, fmt.Errorf("%w: prefix %d of %d bytes", ErrInvalidArgument, n, len(b))
	}
	return p.intern(b[:n:n])
}

// InternRange interns b[from:to]
func (p *Pool) InternRange(b []byte, from, to int) (Ref, error) {
	if b == nil || from < 0 || to < from || to > len(b) {
		return Ref{}, fmt.Errorf("%w: range [%d:%d] of %d bytes", ErrInvalidArgument, from, to, len(b))
	}
	return p.intern(b[from:to:to])
}

func (p *Pool) intern(key []byte) (Ref, error) {
	if p.closed {
		return Ref{}, ErrClosed
	}
	ref, found, err := p.set.FindOrInsert(key)
	if err != nil {
		return Ref{}, err
	}
	if found {
		p.stats.ItemsSaved++
		p.stats.BytesSaved += int64(len(key))
		return ref, nil
	}
	p.stats.ItemsAdded++
	p.stats.BytesInMemory += int64(len(key))
	return ref, nil
}

// S takes a string, and returns the canonical interned copy. The result shares memory with the
// pool and stays valid after the pool grows or is closed
func (p *Pool) S(in string) (string, error) {
	ref, err := p.Intern(in)
	if err != nil {
		return "", err
	}
	return p.String(ref), nil
}

// BS takes a slice of bytes, and returns the canonical interned string
func (p *Pool) BS(in []byte) (string, error) {
	ref, err := p.InternBytes(in)
	if err != nil {
		return "", err
	}
	return p.String(ref), nil
}

// Lookup returns the Ref of s without inserting
func (p *Pool) Lookup(s string) (Ref, bool) {
	return p.LookupBytes(stringKey(s))
}

// LookupBytes returns the Ref of b without inserting. Nil is never found
func (p *Pool) LookupBytes(b []byte) (Ref, bool) {
	if p.closed {
		return Ref{}, false
	}
	return p.set.Get(b)
}

// Contains reports whether s has been interned
func (p *Pool) Contains(s string) bool {
	_, ok := p.Lookup(s)
	return ok
}

// String resolves ref to a string sharing memory with the buffer
func (p *Pool) String(ref Ref) string {
	if p.closed {
		return ""
	}
	return castBytesToString(p.buf.View(ref))
}

// Bytes resolves ref to its content bytes. The []byte you get back, you absolutely CAN NOT make changes to
func (p *Pool) Bytes(ref Ref) []byte {
	if p.closed {
		return nil
	}
	return p.buf.View(ref)
}

// Terminated is Bytes plus the trailing 0 byte
func (p *Pool) Terminated(ref Ref) []byte {
	if p.closed {
		return nil
	}
	return p.buf.Terminated(ref)
}

// Size returns the number of distinct strings interned
func (p *Pool) Size() int {
	if p.closed {
		return 0
	}
	return p.set.Len()
}

// MemoryUsage estimates the bytes held by the pool: buffer and slot storage plus the structs
func (p *Pool) MemoryUsage() int {
	if p.closed {
		return 0
	}
	return int(unsafe.Sizeof(*p)) +
		int(unsafe.Sizeof(*p.buf)) + p.buf.Cap() +
		int(unsafe.Sizeof(*p.set)) + len(p.set.slots)*slotSize
}

// Stats returns the pool counters and current geometry
func (p *Pool) Stats() Statistics {
	st := p.stats
	if p.closed {
		return st
	}
	st.Collisions = p.set.collisions
	st.CellarPlacements = p.set.cellarPlacements
	st.ProbePlacements = p.set.probePlacements
	st.Rehashes = p.set.rehashes
	st.BufferGrowths = p.buf.grows
	st.BufferSize = p.buf.Size()
	st.BufferCapacity = p.buf.Cap()
	st.SetCapacity = int(p.set.capacity)
	st.TableCapacity = int(p.set.tableCapacity)
	st.CellarCapacity = int(p.set.cellarCapacity)
	st.CellarFree = int(p.set.cellarFree)
	st.LoadFactor = p.set.loadFactor
	st.CellarRatio = p.set.cellarRatio
	return st
}

// Close releases the buffer and the set together. Strings obtained from S, BS or String
// remain valid; Refs can no longer be resolved
func (p *Pool) Close() {
	if p.closed {
		return
	}
	p.stats = p.Stats()
	p.closed = true
	p.set.release()
	p.buf.release()
}
