package strpool

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// MemoryBudget caps the bytes that buffer and set storage may hold across every pool sharing it.
// A nil *MemoryBudget is unlimited.
type MemoryBudget struct {
	limit int64
	sem   *semaphore.Weighted
	used  atomic.Int64
}

// NewMemoryBudget creates a budget of limit bytes. A limit <= 0 only tracks usage
func NewMemoryBudget(limit int64) *MemoryBudget {
	b := &MemoryBudget{limit: limit}
	if limit > 0 {
		b.sem = semaphore.NewWeighted(limit)
	}
	return b
}

// Acquire reserves n bytes without blocking
func (b *MemoryBudget) Acquire(n int64) error {
	if b == nil || n <= 0 {
		return nil
	}
	if b.sem != nil && !b.sem.TryAcquire(n) {
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use", ErrOutOfMemory, n, b.used.Load(), b.limit)
	}
	b.used.Add(n)
	return nil
}

// Release returns n bytes to the budget
func (b *MemoryBudget) Release(n int64) {
	if b == nil || n <= 0 {
		return
	}
	if b.sem != nil {
		b.sem.Release(n)
	}
	b.used.Add(-n)
}

// Used returns the bytes currently reserved
func (b *MemoryBudget) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used.Load()
}

// Limit returns the configured limit, 0 when unlimited
func (b *MemoryBudget) Limit() int64 {
	if b == nil {
		return 0
	}
	return b.limit
}
