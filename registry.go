package strpool

import (
	gsync "github.com/SaveTheRbtz/generic-sync-map-go"
)

// Registry hands out one SyncPool per name, e.g. one per worker or per kind of token.
// Pools are created on first use with the registry options; a MemoryBudget passed through
// WithMemoryBudget is shared by all of them.
type Registry struct {
	pools gsync.MapOf[string, *SyncPool]
	opts  []Option
}

// NewRegistry creates an empty registry whose pools are built with opts
func NewRegistry(opts ...Option) *Registry {
	return &Registry{opts: opts}
}

// Pool returns the pool registered under name, creating it if needed
func (r *Registry) Pool(name string) (*SyncPool, error) {
	if sp, loaded := r.pools.Load(name); loaded {
		return sp, nil
	}
	sp, err := NewSync(r.opts...)
	if err != nil {
		return nil, err
	}
	actual, loaded := r.pools.LoadOrStore(name, sp)
	if loaded {
		// Somebody beat us to it
		sp.Close()
	}
	return actual, nil
}

// Range calls fn for every registered pool until fn returns false
func (r *Registry) Range(fn func(name string, sp *SyncPool) bool) {
	r.pools.Range(fn)
}

// Len returns the number of registered pools
func (r *Registry) Len() int {
	var n int
	r.pools.Range(func(string, *SyncPool) bool {
		n++
		return true
	})
	return n
}

// Statistics returns the statistics of every pool by name
func (r *Registry) Statistics() map[string]Statistics {
	out := make(map[string]Statistics)
	r.pools.Range(func(name string, sp *SyncPool) bool {
		out[name] = sp.Stats()
		return true
	})
	return out
}

// Delete closes and forgets the pool registered under name
func (r *Registry) Delete(name string) {
	if sp, loaded := r.pools.Load(name); loaded {
		r.pools.Delete(name)
		sp.Close()
	}
}

// Flush closes and forgets every pool
func (r *Registry) Flush() {
	r.pools.Range(func(name string, sp *SyncPool) bool {
		r.pools.Delete(name)
		sp.Close()
		return true
	})
}
