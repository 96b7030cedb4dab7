package strpool

import (
	"fmt"
)

// Ref locates an interned string inside a pool's buffer. It stays valid across buffer growth,
// since it holds an offset rather than an address.
type Ref struct {
	off uint32
	n   uint32
}

// Offset is the position of the first byte in the buffer
func (r Ref) Offset() int { return int(r.off) }

// Len is the content length, terminator excluded
func (r Ref) Len() int { return int(r.n) }

// Buffer owns the bytes of every interned string. Strings are stored back to back,
// each followed by a 0 terminator, and never move relative to the start of the buffer.
type Buffer struct {
	data []byte // len(data) is the capacity
	size uint32
	max  uint64

	budget   *MemoryBudget
	observer Observer
	grows    int64
}

func newBuffer(capacity int, max uint64, budget *MemoryBudget, observer Observer) (*Buffer, error) {
	if err := budget.Acquire(int64(capacity)); err != nil {
		return nil, err
	}
	data, err := allocSlice[byte](capacity)
	if err != nil {
		budget.Release(int64(capacity))
		return nil, err
	}
	return &Buffer{
		data:     data,
		max:      max,
		budget:   budget,
		observer: observer,
	}, nil
}

// Size returns the bytes in use, terminators included
func (b *Buffer) Size() int { return int(b.size) }

// Cap returns the bytes allocated
func (b *Buffer) Cap() int { return len(b.data) }

// Append copies in plus a terminator to the end of the buffer
func (b *Buffer) Append(in []byte) (Ref, error) {
	need := uint64(b.size) + uint64(len(in)) + 1
	if need > uint64(len(b.data)) {
		if err := b.grow(need); err != nil {
			return Ref{}, err
		}
	}
	off := b.size
	copy(b.data[off:], in)
	b.data[uint64(off)+uint64(len(in))] = 0
	b.size = uint32(need)
	return Ref{off: off, n: uint32(len(in))}, nil
}

// newCapacity is max(min, 2*old+2), capped at max
func (b *Buffer) newCapacity(min uint64) (uint64, error) {
	if min > b.max {
		return 0, fmt.Errorf("%w: buffer needs %d bytes, limit is %d", ErrCapacityExceeded, min, b.max)
	}
	old := uint64(len(b.data))
	c := old<<1 + 2
	if c < min {
		c = min
	}
	if c > b.max {
		c = b.max
	}
	return c, nil
}

func (b *Buffer) grow(min uint64) error {
	c, err := b.newCapacity(min)
	if err != nil {
		return err
	}
	old := len(b.data)
	delta := int64(c) - int64(old)
	if err := b.budget.Acquire(delta); err != nil {
		return err
	}
	data, err := allocSlice[byte](int(c))
	if err != nil {
		b.budget.Release(delta)
		return err
	}
	copy(data, b.data[:b.size])
	// The old array is left to the garbage collector, strings returned by View/String keep it alive
	b.data = data
	b.grows++
	b.observer.Observe(Event{
		Kind:        EventBufferGrow,
		OldCapacity: old,
		NewCapacity: len(data),
		Size:        int(b.size),
	})
	return nil
}

func (b *Buffer) valid(r Ref) bool {
	return uint64(r.off)+uint64(r.n) < uint64(b.size)
}

// View returns the content bytes of r, or nil for a ref this buffer did not issue.
// The slice must not be modified
func (b *Buffer) View(r Ref) []byte {
	if !b.valid(r) {
		return nil
	}
	end := r.off + r.n
	return b.data[r.off:end:end]
}

// Terminated is View plus the trailing 0
func (b *Buffer) Terminated(r Ref) []byte {
	if !b.valid(r) {
		return nil
	}
	end := r.off + r.n + 1
	return b.data[r.off:end:end]
}

func (b *Buffer) release() {
	b.budget.Release(int64(len(b.data)))
	b.data = nil
	b.size = 0
}
