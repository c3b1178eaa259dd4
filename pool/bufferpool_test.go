package pool_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/pool"
)

func TestNewRejectsBadGeometry(t *testing.T) {
	_, err := pool.New(0, 64)
	assert.ErrorIs(t, err, api.ErrRejected)
	_, err = pool.New(4, 0)
	assert.ErrorIs(t, err, api.ErrRejected)
}

func TestAcquireUntilExhausted(t *testing.T) {
	p, err := pool.New(2, 64)
	require.Nil(t, err)

	a, err := p.Acquire()
	require.Nil(t, err)
	b, err := p.Acquire()
	require.Nil(t, err)
	assert.NotEqual(t, a.Index(), b.Index())
	assert.Equal(t, 0, p.Available())
	assert.Equal(t, 2, p.Outstanding())

	_, err = p.Acquire()
	assert.ErrorIs(t, err, api.ErrExhausted)
	assert.True(t, p.Suspended())

	// The first release after exhaustion asks the caller to resume.
	assert.True(t, p.Release(a))
	assert.False(t, p.Suspended())
	assert.False(t, p.Release(b))

	st := p.Stats()
	assert.Equal(t, api.PoolStats{
		Capacity:    2,
		Free:        2,
		Acquires:    2,
		Releases:    2,
		Exhaustions: 1,
	}, st)
}

func TestReleaseWithoutExhaustionDoesNotResume(t *testing.T) {
	p, err := pool.New(3, 64)
	require.Nil(t, err)
	h, err := p.Acquire()
	require.Nil(t, err)
	assert.False(t, p.Release(h))
}

func TestSlotStateTransitions(t *testing.T) {
	p, err := pool.New(1, 16)
	require.Nil(t, err)
	h, err := p.Acquire()
	require.Nil(t, err)
	assert.Equal(t, pool.SlotInFlight, p.State(h))

	n := copy(p.Slot(h), "hello")
	p.SetLen(h, n)
	assert.Equal(t, []byte("hello"), p.Bytes(h))

	p.MarkQueued(h)
	assert.Equal(t, pool.SlotQueued, p.State(h))
	assert.Panics(t, func() { p.MarkQueued(h) }, "queued slot cannot be queued again")

	p.Release(h)
	assert.Equal(t, pool.SlotFree, p.State(h))
	assert.Equal(t, 0, p.Len(h))
}

func TestDoubleReleasePanics(t *testing.T) {
	p, err := pool.New(2, 16)
	require.Nil(t, err)
	h, err := p.Acquire()
	require.Nil(t, err)
	p.Release(h)
	assert.Panics(t, func() { p.Release(h) })
	// The free set is intact after the caught defect.
	assert.Equal(t, 2, p.Available())
}

func TestForeignHandlePanics(t *testing.T) {
	p1, err := pool.New(1, 16)
	require.Nil(t, err)
	p2, err := pool.New(1, 16)
	require.Nil(t, err)
	h, err := p1.Acquire()
	require.Nil(t, err)
	assert.False(t, p2.Owns(h))
	assert.Panics(t, func() { p2.Release(h) })
	assert.Panics(t, func() { p2.Release(pool.Handle{}) })
}

func TestFreeSlotAccessPanics(t *testing.T) {
	p, err := pool.New(1, 16)
	require.Nil(t, err)
	h, err := p.Acquire()
	require.Nil(t, err)
	p.Release(h)
	assert.Panics(t, func() { _ = p.Slot(h) })
	assert.Panics(t, func() { p.SetLen(h, 0) })
}

func TestSetLenBounds(t *testing.T) {
	p, err := pool.New(1, 16)
	require.Nil(t, err)
	h, err := p.Acquire()
	require.Nil(t, err)
	assert.Panics(t, func() { p.SetLen(h, 17) })
	assert.NotPanics(t, func() { p.SetLen(h, 16) })
}

func TestCloseWithOutstandingPanics(t *testing.T) {
	p, err := pool.New(2, 16)
	require.Nil(t, err)
	h, err := p.Acquire()
	require.Nil(t, err)
	assert.Panics(t, func() { p.Close() })
	p.Release(h)
	assert.NotPanics(t, func() { p.Close() })
	assert.Panics(t, func() { _, _ = p.Acquire() })
}

// TestRandomSequencesConserveSlots drives random acquire/queue/release
// sequences and checks that the pool never hands out more than its
// capacity and that every slot is accounted for exactly once.
func TestRandomSequencesConserveSlots(t *testing.T) {
	const capacity = 8
	p, err := pool.New(capacity, 32)
	require.Nil(t, err)
	rnd := rand.New(rand.NewSource(1))
	var held []pool.Handle
	for i := 0; i < 10000; i++ {
		switch rnd.Intn(3) {
		case 0:
			h, err := p.Acquire()
			if len(held) == capacity {
				require.ErrorIs(t, err, api.ErrExhausted)
				continue
			}
			require.Nil(t, err)
			held = append(held, h)
		case 1:
			if len(held) == 0 {
				continue
			}
			h := held[rnd.Intn(len(held))]
			if p.State(h) == pool.SlotInFlight {
				p.MarkQueued(h)
			}
		case 2:
			if len(held) == 0 {
				continue
			}
			j := rnd.Intn(len(held))
			p.Release(held[j])
			held = append(held[:j], held[j+1:]...)
		}
		st := p.Stats()
		require.LessOrEqual(t, p.Outstanding(), capacity)
		require.Equal(t, capacity, st.Free+st.InFlight+st.Queued)
		require.Equal(t, len(held), p.Outstanding())
	}
}
