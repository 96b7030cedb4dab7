package strpool

import (
	"sync"
	"sync/atomic"
)

// SyncPool serializes access to a Pool. Lookups share a read lock, inserts take the write lock.
type SyncPool struct {
	lock sync.RWMutex
	pool *Pool

	// Hits found under the read lock, folded into Stats
	itemsSaved atomic.Int64
	bytesSaved atomic.Int64
}

// NewSync allocates a Pool guarded by a lock
func NewSync(opts ...Option) (*SyncPool, error) {
	p, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return &SyncPool{pool: p}, nil
}

// lookup must be called with at least the read lock held
func (sp *SyncPool) lookup(s string) (Ref, bool) {
	ref, found := sp.pool.Lookup(s)
	if found {
		sp.itemsSaved.Add(1)
		sp.bytesSaved.Add(int64(len(s)))
	}
	return ref, found
}

// Intern returns the Ref of s, storing s on first sight
func (sp *SyncPool) Intern(s string) (Ref, error) {
	sp.lock.RLock()
	ref, found := sp.lookup(s)
	sp.lock.RUnlock()
	if found {
		return ref, nil
	}

	sp.lock.Lock()
	defer sp.lock.Unlock()
	return sp.pool.Intern(s)
}

// S takes a string and returns the canonical interned copy. The string is resolved under the
// same lock that found or stored it, so a concurrent Close yields ErrClosed, never ""
func (sp *SyncPool) S(in string) (string, error) {
	sp.lock.RLock()
	if ref, found := sp.lookup(in); found {
		out := sp.pool.String(ref)
		sp.lock.RUnlock()
		return out, nil
	}
	sp.lock.RUnlock()

	sp.lock.Lock()
	defer sp.lock.Unlock()
	ref, err := sp.pool.Intern(in)
	if err != nil {
		return "", err
	}
	return sp.pool.String(ref), nil
}

// BS takes a slice of bytes and returns the canonical interned string
func (sp *SyncPool) BS(in []byte) (string, error) {
	if in == nil {
		_, err := sp.InternBytes(in)
		return "", err
	}
	return sp.S(castBytesToString(in))
}

// InternBytes is Intern for a byte slice
func (sp *SyncPool) InternBytes(b []byte) (Ref, error) {
	sp.lock.Lock()
	defer sp.lock.Unlock()
	return sp.pool.InternBytes(b)
}

// Lookup returns the Ref of s without inserting
func (sp *SyncPool) Lookup(s string) (Ref, bool) {
	sp.lock.RLock()
	defer sp.lock.RUnlock()
	return sp.pool.Lookup(s)
}

// Contains reports whether s has been interned
func (sp *SyncPool) Contains(s string) bool {
	_, ok := sp.Lookup(s)
	return ok
}

// String resolves ref against the pool buffer
func (sp *SyncPool) String(ref Ref) string {
	sp.lock.RLock()
	defer sp.lock.RUnlock()
	return sp.pool.String(ref)
}

// Size returns the number of distinct strings
func (sp *SyncPool) Size() int {
	sp.lock.RLock()
	defer sp.lock.RUnlock()
	return sp.pool.Size()
}

// MemoryUsage estimates the bytes held by the pool
func (sp *SyncPool) MemoryUsage() int {
	sp.lock.RLock()
	defer sp.lock.RUnlock()
	return sp.pool.MemoryUsage()
}

// Stats returns a snapshot of the pool statistics
func (sp *SyncPool) Stats() Statistics {
	sp.lock.RLock()
	st := sp.pool.Stats()
	sp.lock.RUnlock()
	st.ItemsSaved += sp.itemsSaved.Load()
	st.BytesSaved += sp.bytesSaved.Load()
	return st
}

// Close releases the pool storage
func (sp *SyncPool) Close() {
	sp.lock.Lock()
	sp.pool.Close()
	sp.lock.Unlock()
}
