package strpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBudget(t *testing.T) {
	b := NewMemoryBudget(100)
	assert.Equal(t, int64(100), b.Limit())

	require.NoError(t, b.Acquire(60))
	assert.ErrorIs(t, b.Acquire(50), ErrOutOfMemory)
	assert.Equal(t, int64(60), b.Used())

	b.Release(60)
	require.NoError(t, b.Acquire(100))
	b.Release(100)
	assert.Equal(t, int64(0), b.Used())
}

func TestMemoryBudgetNil(t *testing.T) {
	var b *MemoryBudget
	require.NoError(t, b.Acquire(1<<40))
	b.Release(1 << 40)
	assert.Equal(t, int64(0), b.Used())
	assert.Equal(t, int64(0), b.Limit())
}

func TestMemoryBudgetLimitsRehash(t *testing.T) {
	// Room for the initial storage and one buffer growth, not for doubling the set
	initial := int64(DefaultBufferCapacity + DefaultSetCapacity*slotSize)
	b := NewMemoryBudget(initial + 200)

	p, err := New(WithMemoryBudget(b))
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 20 && lastErr == nil; i++ {
		_, lastErr = p.Intern(string(rune('a' + i)))
	}
	assert.ErrorIs(t, lastErr, ErrOutOfMemory)
	checkInvariants(t, p.set)
	for i := 0; i < p.Size(); i++ {
		assert.True(t, p.Contains(string(rune('a'+i))))
	}
}
