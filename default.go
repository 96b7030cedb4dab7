package strpool

import (
	"sync"
)

var (
	lock        sync.Mutex
	defaultPool *SyncPool
)

func getDefault() *SyncPool {
	lock.Lock()
	defer lock.Unlock()
	if defaultPool == nil {
		sp, err := NewSync()
		if err != nil {
			// Defaults always validate, so this is an allocation failure
			return nil
		}
		defaultPool = sp
	}
	return defaultPool
}

// S deduplicates the given string through the package default pool. If the pool cannot take
// it, in is returned unchanged
func S(in string) string {
	sp := getDefault()
	if sp == nil {
		return in
	}
	out, err := sp.S(in)
	if err != nil {
		return in
	}
	return out
}

// BS takes a slice of bytes and returns a deduplicated string from the package default pool.
// If the pool cannot take it, a plain copy is returned
func BS(in []byte) string {
	sp := getDefault()
	if sp == nil {
		return string(in)
	}
	out, err := sp.BS(in)
	if err != nil {
		return string(in)
	}
	return out
}

// Size returns the number of distinct strings in the package default pool
func Size() int {
	lock.Lock()
	sp := defaultPool
	lock.Unlock()
	if sp == nil {
		return 0
	}
	return sp.Size()
}

// Flush drops the package default pool. Strings returned earlier stay valid
func Flush() {
	lock.Lock()
	sp := defaultPool
	defaultPool = nil
	lock.Unlock()
	if sp != nil {
		sp.Close()
	}
}
