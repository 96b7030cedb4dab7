package strpool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constHash(h uint32) HashFunc {
	return func([]byte) uint32 { return h }
}

// chainLength counts the slots on the chain starting at hash's home bucket
func chainLength(s *Set, hash uint32) int {
	i := s.home(hash)
	if s.slots[i].state == slotEmpty {
		return 0
	}
	n := 1
	for s.slots[i].hasNext {
		i = s.slots[i].next
		n++
	}
	return n
}

// checkInvariants verifies the set geometry, reachability of every entry from its home
// bucket, acyclic chains and uniqueness of content
func checkInvariants(t *testing.T, s *Set) {
	t.Helper()

	cellar, table := splitCapacity(int(s.capacity), s.cellarRatio)
	require.Equal(t, cellar, int(s.cellarCapacity), "cellar capacity")
	require.Equal(t, table, int(s.tableCapacity), "table capacity")
	require.Equal(t, s.capacity, s.tableCapacity+s.cellarCapacity)
	require.Len(t, s.slots, int(s.capacity))
	require.LessOrEqual(t, s.size, s.capacity)
	require.LessOrEqual(t, s.cellarFree, s.cellarCapacity)

	var occupied uint32
	seen := make(map[string]int)
	for i := range s.slots {
		sl := &s.slots[i]
		if sl.state == slotEmpty {
			require.False(t, sl.hasNext, "empty slot %d has a link", i)
			continue
		}
		occupied++
		content := string(s.src.View(sl.ref))
		require.Equal(t, s.hash([]byte(content)), sl.hash, "stored hash of slot %d", i)
		if j, dup := seen[content]; dup {
			t.Fatalf("content %q stored in slots %d and %d", content, j, i)
		}
		seen[content] = i

		// Cellar slots are used from the top down
		if uint32(i) >= s.tableCapacity {
			require.GreaterOrEqual(t, uint32(i), s.tableCapacity+s.cellarFree, "cellar slot %d used out of order", i)
		}

		// Walk from home; a chain longer than the set would mean a cycle
		j := s.home(sl.hash)
		for steps := 0; ; steps++ {
			require.Less(t, steps, int(s.capacity), "cycle on chain of slot %d", i)
			if j == uint32(i) {
				break
			}
			require.True(t, s.slots[j].hasNext, "slot %d not reachable from home %d", i, s.home(sl.hash))
			j = s.slots[j].next
		}
	}
	require.Equal(t, s.size, occupied)
	require.Equal(t, s.cellarCapacity-s.cellarFree, countCellar(s))
}

func countCellar(s *Set) uint32 {
	var n uint32
	for i := s.tableCapacity; i < s.capacity; i++ {
		if s.slots[i].state == slotOccupied {
			n++
		}
	}
	return n
}

func TestSplitCapacity(t *testing.T) {
	tests := []struct {
		capacity      int
		ratio         float64
		cellar, table int
	}{
		{16, DefaultCellarRatio, 2, 14},
		{32, DefaultCellarRatio, 4, 28},
		{64, DefaultCellarRatio, 8, 56},
		{128, DefaultCellarRatio, 17, 111},
		{4, 0.25, 1, 3},
		{8, 0, 0, 8},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d@%v", tt.capacity, tt.ratio), func(t *testing.T) {
			cellar, table := splitCapacity(tt.capacity, tt.ratio)
			assert.Equal(t, tt.cellar, cellar)
			assert.Equal(t, tt.table, table)
		})
	}
}

func TestSetCollisionUsesCellar(t *testing.T) {
	p, err := New(WithHashFunc(constHash(0)))
	require.NoError(t, err)
	s := p.set

	_, err = p.Intern("a")
	require.NoError(t, err)
	assert.Equal(t, 1, chainLength(s, 0))
	assert.Equal(t, slotOccupied, s.slots[0].state)

	_, err = p.Intern("b")
	require.NoError(t, err)
	assert.Equal(t, 2, chainLength(s, 0))
	assert.Equal(t, slotOccupied, s.slots[15].state, "first collision goes to the top cellar slot")
	assert.Equal(t, "b", string(s.src.View(s.slots[15].ref)))
	assert.Equal(t, uint32(1), s.cellarFree)

	_, err = p.Intern("c")
	require.NoError(t, err)
	assert.Equal(t, "c", string(s.src.View(s.slots[14].ref)))
	assert.Equal(t, uint32(0), s.cellarFree)

	// Cellar exhausted, probe linearly after home
	_, err = p.Intern("d")
	require.NoError(t, err)
	assert.Equal(t, "d", string(s.src.View(s.slots[1].ref)))
	assert.Equal(t, 4, chainLength(s, 0))

	for _, k := range []string{"a", "b", "c", "d"} {
		assert.True(t, p.Contains(k), k)
	}
	assert.False(t, p.Contains("e"))

	st := p.Stats()
	assert.Equal(t, int64(3), st.Collisions)
	assert.Equal(t, int64(2), st.CellarPlacements)
	assert.Equal(t, int64(1), st.ProbePlacements)
	checkInvariants(t, s)
}

func TestSetProbeWraps(t *testing.T) {
	p, err := New(WithHashFunc(constHash(13)))
	require.NoError(t, err)
	s := p.set
	require.Equal(t, uint32(14), s.tableCapacity)

	for _, k := range []string{"a", "b", "c", "d"} {
		_, err := p.Intern(k)
		require.NoError(t, err)
	}
	assert.Equal(t, "a", string(s.src.View(s.slots[13].ref)))
	assert.Equal(t, "d", string(s.src.View(s.slots[0].ref)), "probe wraps past the end of the table region")
	checkInvariants(t, s)
}

func TestSetCoalescedChains(t *testing.T) {
	// Homes 0 and 1 collide through a probed entry sitting in slot 1
	hashes := map[string]uint32{"a": 0, "b": 0, "c": 0, "d": 0, "e": 1, "f": 1}
	p, err := New(WithHashFunc(func(in []byte) uint32 { return hashes[string(in)] }))
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		_, err := p.Intern(k)
		require.NoError(t, err)
		checkInvariants(t, p.set)
	}
	for k := range hashes {
		assert.True(t, p.Contains(k), k)
	}
	assert.Equal(t, 6, p.Size())
}

func TestSetRehashPreservesMembership(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	const n = 100
	for i := 0; i < n; i++ {
		_, err := p.Intern(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		checkInvariants(t, p.set)
	}

	st := p.Stats()
	assert.Equal(t, 256, st.SetCapacity)
	assert.Equal(t, int64(4), st.Rehashes)
	assert.Equal(t, n, p.Size())
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("key-%d", i)
		ref, ok := p.Lookup(k)
		require.True(t, ok, k)
		assert.Equal(t, k, p.String(ref))
	}
}

func TestSetRehashDoublesCapacity(t *testing.T) {
	var events []Event
	p, err := New(WithObserver(ObserverFunc(func(e Event) {
		if e.Kind == EventRehash {
			events = append(events, e)
		}
	})))
	require.NoError(t, err)

	// 16 * 0.68 = 10.88, so the 12th insert finds 11 entries and grows first
	for i := 0; i < 11; i++ {
		_, err := p.Intern(fmt.Sprintf("%d", i))
		require.NoError(t, err)
	}
	assert.Empty(t, events)
	_, err = p.Intern("eleven")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 16, events[0].OldCapacity)
	assert.Equal(t, 32, events[0].NewCapacity)
	assert.Equal(t, 11, events[0].Size)
	checkInvariants(t, p.set)
}

func TestSetPlacementFailedResetsLoadFactor(t *testing.T) {
	var events []Event
	p, err := New(
		WithSetCapacity(4),
		WithCellarRatio(0.25),
		WithLoadFactor(1),
		WithObserver(ObserverFunc(func(e Event) { events = append(events, e) })),
	)
	require.NoError(t, err)

	keys := []string{"one", "two", "three", "four", "five"}
	for _, k := range keys[:4] {
		_, err := p.Intern(k)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, p.Stats().SetCapacity)

	_, err = p.Intern(keys[4])
	require.NoError(t, err)

	var kinds []EventKind
	var failed Event
	for _, e := range events {
		if e.Kind == EventBufferGrow {
			continue
		}
		kinds = append(kinds, e.Kind)
		if e.Kind == EventPlacementFailed {
			failed = e
		}
	}
	assert.Equal(t, []EventKind{EventPlacementFailed, EventRehash}, kinds)
	assert.Equal(t, 1.0, failed.LoadFactor)
	assert.Equal(t, 4, failed.Size)

	st := p.Stats()
	assert.Equal(t, DefaultLoadFactor, st.LoadFactor)
	assert.Equal(t, 8, st.SetCapacity)
	assert.Equal(t, 5, p.Size())
	for _, k := range keys {
		assert.True(t, p.Contains(k), k)
	}
	checkInvariants(t, p.set)
}

func TestSetFullWhenCapped(t *testing.T) {
	p, err := New(
		WithSetCapacity(4),
		WithCellarRatio(0.25),
		WithLoadFactor(1),
		WithMaxSetCapacity(4),
	)
	require.NoError(t, err)

	for _, k := range []string{"one", "two", "three", "four"} {
		_, err := p.Intern(k)
		require.NoError(t, err)
	}
	before := p.Stats().BufferSize

	_, err = p.Intern("five")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSetFull))
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Equal(t, before, p.Stats().BufferSize, "a failed insert must not touch the buffer")
	assert.False(t, p.Contains("five"))
	assert.Equal(t, 4, p.Size())
	checkInvariants(t, p.set)
}

func TestSetCapacityExceeded(t *testing.T) {
	p, err := New(WithSetCapacity(4), WithLoadFactor(0.5), WithMaxSetCapacity(4))
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		_, err := p.Intern(k)
		require.NoError(t, err)
	}
	_, err = p.Intern("d")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 3, p.Size())
}

func TestSetFindOrInsert(t *testing.T) {
	p, err := New()
	require.NoError(t, err)

	ref, found, err := p.set.FindOrInsert([]byte("x"))
	require.NoError(t, err)
	assert.False(t, found)

	again, found, err := p.set.FindOrInsert([]byte("x"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ref, again)

	_, _, err = p.set.FindOrInsert(nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, ok := p.set.Get(nil)
	assert.False(t, ok)
	assert.False(t, p.set.Contains(nil))
}
