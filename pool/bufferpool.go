// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-capacity arena of frame buffers with an explicit free-index stack.
// Every slot carries an ownership state checked at each transition, so a
// slot can be free, in flight, or queued, and never two of them at once.

package pool

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/internal/runtimex"
)

// SlotState is the ownership state of one arena slot.
type SlotState uint8

const (
	SlotFree SlotState = iota
	SlotInFlight
	SlotQueued
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotInFlight:
		return "in-flight"
	case SlotQueued:
		return "queued"
	default:
		return "invalid"
	}
}

// Handle names one slot of one Pool. The zero value is invalid.
type Handle struct {
	pool  uint64
	index int32
}

// Index returns the slot index inside its pool.
func (h Handle) Index() int { return int(h.index) }

// Valid reports whether h was minted by some pool.
func (h Handle) Valid() bool { return h.pool != 0 }

var poolSerial atomic.Uint64

// Pool is the per-endpoint buffer arena. It is not safe for concurrent
// use: the owning endpoint serializes every call under its mutex.
type Pool struct {
	id       uint64
	slotSize int
	arena    []byte
	lens     []int
	state    []SlotState
	free     []int32

	inFlight  int
	queued    int
	suspended bool
	closed    bool

	acquires    uint64
	releases    uint64
	exhaustions uint64
}

// New allocates a pool of capacity slots of slotSize bytes each.
func New(capacity, slotSize int) (*Pool, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(api.ErrInvalidArgument, "pool capacity %d", capacity)
	}
	if slotSize < 1 {
		return nil, errors.Wrapf(api.ErrInvalidArgument, "pool slot size %d", slotSize)
	}
	p := &Pool{
		id:       poolSerial.Add(1),
		slotSize: slotSize,
		arena:    make([]byte, capacity*slotSize),
		lens:     make([]int, capacity),
		state:    make([]SlotState, capacity),
		free:     make([]int32, capacity),
	}
	// Lowest index on top of the stack.
	for i := range p.free {
		p.free[i] = int32(capacity - 1 - i)
	}
	return p, nil
}

// Acquire removes one slot from the free set and marks it in flight.
// On empty it returns api.ErrExhausted and remembers that transmits are
// suspended on this pool until the next Release.
func (p *Pool) Acquire() (Handle, error) {
	runtimex.Assert(!p.closed, "pool: acquire after close")
	n := len(p.free)
	if n == 0 {
		p.suspended = true
		p.exhaustions++
		return Handle{}, api.ErrExhausted
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	runtimex.Assert(p.state[idx] == SlotFree, "pool: slot %d on free stack is %s", idx, p.state[idx])
	p.state[idx] = SlotInFlight
	p.lens[idx] = 0
	p.inFlight++
	p.acquires++
	return Handle{pool: p.id, index: idx}, nil
}

// MarkQueued moves an in-flight slot to the queued state.
func (p *Pool) MarkQueued(h Handle) {
	idx := p.check(h)
	runtimex.Assert(p.state[idx] == SlotInFlight, "pool: queue slot %d in state %s", idx, p.state[idx])
	p.state[idx] = SlotQueued
	p.inFlight--
	p.queued++
}

// Release returns a checked-out slot to the free set. resume is true
// when the pool had been exhausted with transmits suspended, in which
// case the caller must wake the suspended transmitters.
func (p *Pool) Release(h Handle) (resume bool) {
	idx := p.check(h)
	switch p.state[idx] {
	case SlotInFlight:
		p.inFlight--
	case SlotQueued:
		p.queued--
	default:
		runtimex.Assert(false, "pool: double release of slot %d", idx)
	}
	p.state[idx] = SlotFree
	p.lens[idx] = 0
	p.free = append(p.free, idx)
	p.releases++
	resume = p.suspended
	p.suspended = false
	return resume
}

// Slot returns the full storage of a checked-out slot. Only the current
// holder may touch it.
func (p *Pool) Slot(h Handle) []byte {
	idx := p.check(h)
	runtimex.Assert(p.state[idx] != SlotFree, "pool: access to free slot %d", idx)
	off := int(idx) * p.slotSize
	return p.arena[off : off+p.slotSize : off+p.slotSize]
}

// Bytes returns the valid payload of a checked-out slot.
func (p *Pool) Bytes(h Handle) []byte {
	return p.Slot(h)[:p.lens[h.index]]
}

// SetLen records the payload length of a checked-out slot.
func (p *Pool) SetLen(h Handle, n int) {
	idx := p.check(h)
	runtimex.Assert(p.state[idx] != SlotFree, "pool: length on free slot %d", idx)
	runtimex.Assert(n >= 0 && n <= p.slotSize, "pool: length %d exceeds slot size %d", n, p.slotSize)
	p.lens[idx] = n
}

// Len returns the payload length of a slot.
func (p *Pool) Len(h Handle) int {
	return p.lens[p.check(h)]
}

// State returns the ownership state of a slot.
func (p *Pool) State(h Handle) SlotState {
	return p.state[p.check(h)]
}

// Owns reports whether h was minted by this pool.
func (p *Pool) Owns(h Handle) bool {
	return h.pool == p.id && h.index >= 0 && int(h.index) < len(p.state)
}

// Cap returns the fixed capacity.
func (p *Pool) Cap() int { return len(p.state) }

// SlotSize returns the size of every slot.
func (p *Pool) SlotSize() int { return p.slotSize }

// Available returns the number of free slots.
func (p *Pool) Available() int { return len(p.free) }

// Outstanding returns the number of slots outside the free set.
func (p *Pool) Outstanding() int { return p.inFlight + p.queued }

// Suspended reports whether an Acquire failed since the last Release.
func (p *Pool) Suspended() bool { return p.suspended }

// Stats exposes occupancy and accounting counters.
func (p *Pool) Stats() api.PoolStats {
	return api.PoolStats{
		Capacity:    len(p.state),
		Free:        len(p.free),
		InFlight:    p.inFlight,
		Queued:      p.queued,
		Acquires:    p.acquires,
		Releases:    p.releases,
		Exhaustions: p.exhaustions,
	}
}

// Close retires the pool. Every slot must be back in the free set.
func (p *Pool) Close() {
	if p.closed {
		return
	}
	runtimex.Assert(p.Outstanding() == 0, "pool: close with %d slots outstanding", p.Outstanding())
	p.closed = true
}

func (p *Pool) check(h Handle) int32 {
	runtimex.Assert(p.Owns(h), "pool: foreign or invalid handle %d/%d", h.pool, h.index)
	return h.index
}
