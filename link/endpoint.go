// File: link/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One side of the software link.

package link

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/pool"
)

// txRecord marks one transmit that has not seen TransmitComplete yet.
type txRecord struct {
	buf    pool.Handle
	length int
	start  time.Time
}

// Endpoint is an emulated Ethernet-class interface. It implements
// api.Transmitter, api.Poller and api.StatsReporter.
type Endpoint struct {
	id     api.EndpointID
	name   string
	hwaddr net.HardwareAddr
	fabric *Fabric
	disp   *Dispatcher
	upper  api.UpperLayer
	logger log.Interface

	_ cpu.CacheLinePad

	mu         sync.Mutex
	pool       *pool.Pool
	rxq        *pool.FrameQueue
	stats      api.Stats
	mtu        int
	lockup     int
	txSeq      uint64
	inflight   []txRecord
	rxState    api.RxState
	delivering bool
	stopped    bool
	closed     bool
	// waiters[id] is set when endpoint id failed to get a buffer from
	// this endpoint's pool and waits for ResumeTransmit.
	waiters [2]bool
	ops     sync.WaitGroup

	_ cpu.CacheLinePad
}

var (
	_ api.Transmitter   = (*Endpoint)(nil)
	_ api.Poller        = (*Endpoint)(nil)
	_ api.StatsReporter = (*Endpoint)(nil)
)

// ID returns the endpoint id.
func (e *Endpoint) ID() api.EndpointID { return e.id }

// Name returns the interface name, sn0 or sn1.
func (e *Endpoint) Name() string { return e.name }

// HardwareAddr returns the link-layer address.
func (e *Endpoint) HardwareAddr() net.HardwareAddr {
	out := make(net.HardwareAddr, len(e.hwaddr))
	copy(out, e.hwaddr)
	return out
}

// Mode returns the notification discipline.
func (e *Endpoint) Mode() api.Mode { return e.disp.Mode() }

// MTU returns the current MTU.
func (e *Endpoint) MTU() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mtu
}

// RxState reports the receive notification state.
func (e *Endpoint) RxState() api.RxState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rxState
}

// Stats returns a snapshot of the interface counters.
func (e *Endpoint) Stats() api.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// PoolStats returns a snapshot of the buffer pool accounting.
func (e *Endpoint) PoolStats() api.PoolStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Stats()
}

// Pending returns the number of transmits still waiting for completion.
func (e *Endpoint) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

// Queued returns the number of frames waiting on the receive queue.
func (e *Endpoint) Queued() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rxq.Len()
}

// Stopped reports whether a withheld completion stopped the transmit
// queue.
func (e *Endpoint) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// SetMTU changes the MTU. Values outside [api.MinMTU, api.MaxMTU] are
// rejected and leave the MTU unchanged.
func (e *Endpoint) SetMTU(mtu int) error {
	if err := validMTU(mtu); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return api.ErrClosed
	}
	e.mtu = mtu
	return nil
}

// SetLockup changes the lockup modulus: every m-th transmit withholds its
// completion. Zero disables the fault injection.
func (e *Endpoint) SetLockup(m int) error {
	if m < 0 {
		return errors.Wrapf(api.ErrInvalidArgument, "lockup modulus %d", m)
	}
	e.mu.Lock()
	e.lockup = m
	e.mu.Unlock()
	return nil
}

// Lockup returns the lockup modulus.
func (e *Endpoint) Lockup() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lockup
}

// Transmit hands frame to the peer. It never blocks: when either buffer
// pool is exhausted it returns api.ErrSuspended and the upper layer gets
// ResumeTransmit once a buffer comes back. The frame is copied; the
// caller keeps ownership of the slice.
func (e *Endpoint) Transmit(frame []byte) error {
	n := len(frame)
	if n < api.MinFrameLen {
		n = api.MinFrameLen
	}

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return api.ErrClosed
	case e.stopped:
		e.mu.Unlock()
		return api.ErrSuspended
	}
	if limit := e.mtu + api.HeaderLen; len(frame) > limit {
		e.stats.TxDropped++
		e.mu.Unlock()
		return errors.Wrapf(api.ErrFrameTooLarge, "%s: %d bytes, limit %d", e.name, len(frame), limit)
	}
	tx, err := e.pool.Acquire()
	if err != nil {
		e.waiters[e.id] = true
		e.mu.Unlock()
		e.logger.Warn("transmit pool exhausted, suspending")
		return api.ErrSuspended
	}
	e.pool.SetLen(tx, n)
	staged := e.pool.Slot(tx)[:n]
	e.ops.Add(1)
	e.mu.Unlock()
	defer e.ops.Done()

	copy(staged, frame)
	clear(staged[len(frame):])
	if !ShapeLoopback(staged) {
		e.logger.Debug("frame forwarded unshaped")
	}

	peer := e.fabric.Peer(e)
	if err := peer.receive(e.id, staged); err != nil {
		e.releaseStaged(tx)
		return err
	}
	e.disp.Notify(peer, api.FrameReady)

	e.mu.Lock()
	e.txSeq++
	e.inflight = append(e.inflight, txRecord{buf: tx, length: n, start: time.Now()})
	withhold := e.lockup > 0 && e.txSeq%uint64(e.lockup) == 0
	if withhold {
		e.stopped = true
	}
	seq := e.txSeq
	e.mu.Unlock()

	if withhold {
		e.logger.Warnf("simulating lockup at transmit %d", seq)
	} else {
		e.disp.completed(e, tx)
	}
	e.fabric.watchdog.Arm(e)
	return nil
}

// receive copies frame into a buffer of e's pool and queues it. from is
// the sending endpoint, recorded as a waiter when the pool is exhausted.
func (e *Endpoint) receive(from api.EndpointID, frame []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return api.ErrClosed
	}
	rx, err := e.pool.Acquire()
	if err != nil {
		e.waiters[from] = true
		e.mu.Unlock()
		e.logger.Warn("receive pool exhausted, suspending peer")
		return api.ErrSuspended
	}
	e.pool.SetLen(rx, len(frame))
	dst := e.pool.Bytes(rx)
	e.ops.Add(1)
	e.mu.Unlock()

	copy(dst, frame)

	e.mu.Lock()
	e.pool.MarkQueued(rx)
	e.rxq.PushBack(rx)
	e.mu.Unlock()
	e.ops.Done()
	return nil
}

// releaseStaged gives back a staging buffer whose frame never left.
func (e *Endpoint) releaseStaged(h pool.Handle) {
	e.mu.Lock()
	w := e.takeWaitersLocked(e.pool.Release(h))
	e.mu.Unlock()
	e.fabric.wake(w)
}

// Poll delivers up to budget queued frames upward and returns how many
// frames it consumed. Once the queue is empty the endpoint goes back to
// interrupt-driven notification. Concurrent calls are serialized: a call
// that finds another delivery running returns 0.
func (e *Endpoint) Poll(budget int) (int, error) {
	if e.disp.Mode() != api.ModeBudgeted {
		return 0, api.ErrNotBudgeted
	}
	if budget < 1 {
		return 0, errors.Wrapf(api.ErrInvalidArgument, "poll budget %d", budget)
	}
	if !e.beginDelivery() {
		return 0, e.closedErr()
	}
	defer e.ops.Done()

	handled := 0
	for handled < budget && e.deliverOne() {
		handled++
	}

	e.mu.Lock()
	e.delivering = false
	if e.rxq.Len() == 0 {
		e.rxState = api.InterruptDriven
	}
	e.mu.Unlock()
	return handled, nil
}

// OnNotify handles one dispatcher event.
func (e *Endpoint) OnNotify(kind api.NotifyKind) {
	switch kind {
	case api.FrameReady:
		e.disp.frameReady(e)
	case api.TransmitComplete:
		e.complete(pool.Handle{})
	}
}

// drain delivers the whole receive queue inline.
func (e *Endpoint) drain() {
	if !e.beginDelivery() {
		return
	}
	defer e.ops.Done()
	for {
		for e.deliverOne() {
		}
		// A frame pushed after the last pop found us still delivering and
		// did not drain; pick it up before giving the slot back.
		e.mu.Lock()
		if e.closed || e.rxq.Len() == 0 {
			e.delivering = false
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
	}
}

// beginDelivery claims the single delivery slot of the endpoint. It
// fails when the endpoint is closed or another delivery runs.
func (e *Endpoint) beginDelivery() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.delivering {
		return false
	}
	e.delivering = true
	e.ops.Add(1)
	return true
}

func (e *Endpoint) closedErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return api.ErrClosed
	}
	return nil
}

// deliverOne pops the oldest queued frame and hands a copy of it to the
// upper layer. It returns false when nothing was delivered.
func (e *Endpoint) deliverOne() bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	h, ok := e.rxq.PopFront()
	if !ok {
		e.mu.Unlock()
		return false
	}
	data := e.pool.Bytes(h)
	e.mu.Unlock()

	frame := bytes.Clone(data)
	err := e.upper.DeliverFrame(e.id, frame)

	e.mu.Lock()
	if err != nil {
		e.stats.RxDropped++
	} else {
		e.stats.RxPackets++
		e.stats.RxBytes += uint64(len(frame))
	}
	w := e.takeWaitersLocked(e.pool.Release(h))
	e.mu.Unlock()

	if err != nil {
		e.logger.WithError(err).Debug("upper layer dropped frame")
	}
	e.fabric.wake(w)
	return true
}

// complete retires the transmit record of buffer h, or the oldest record
// when h is the zero Handle.
func (e *Endpoint) complete(h pool.Handle) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	i := e.recordLocked(h)
	if i < 0 {
		pending := len(e.inflight)
		e.mu.Unlock()
		e.logger.WithField("pending", pending).Debug("transmit completion without matching record")
		return
	}
	rec := e.inflight[i]
	e.inflight = append(e.inflight[:i], e.inflight[i+1:]...)
	e.stats.TxPackets++
	e.stats.TxBytes += uint64(rec.length)
	w := e.takeWaitersLocked(e.pool.Release(rec.buf))
	e.mu.Unlock()
	e.fabric.wake(w)
}

func (e *Endpoint) recordLocked(h pool.Handle) int {
	if len(e.inflight) == 0 {
		return -1
	}
	if !h.Valid() {
		return 0
	}
	for i, rec := range e.inflight {
		if rec.buf == h {
			return i
		}
	}
	return -1
}

// expireStale returns the buffers of the records older than timeout,
// charges one transmit error for each, and restarts a stopped transmit
// queue. The records themselves are retired by the completions the
// watchdog synthesizes afterwards.
func (e *Endpoint) expireStale(now time.Time, timeout time.Duration) []pool.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	var stale []pool.Handle
	for _, rec := range e.inflight {
		if now.Sub(rec.start) < timeout {
			break
		}
		stale = append(stale, rec.buf)
	}
	if len(stale) > 0 {
		e.stats.TxErrors += uint64(len(stale))
		e.stopped = false
	}
	return stale
}

// oldestDeadline returns when the oldest pending transmit goes stale.
func (e *Endpoint) oldestDeadline(timeout time.Duration) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || len(e.inflight) == 0 {
		return time.Time{}, false
	}
	return e.inflight[0].start.Add(timeout), true
}

// takeWaitersLocked returns and clears the endpoints suspended on this
// endpoint's pool when a release asked for a resume.
func (e *Endpoint) takeWaitersLocked(resume bool) [2]bool {
	if !resume {
		return [2]bool{}
	}
	w := e.waiters
	e.waiters = [2]bool{}
	return w
}

// shutdown rejects new operations. It reports false when the endpoint
// was already closed.
func (e *Endpoint) shutdown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	return true
}

// release waits for the operations in progress, then gives every buffer
// back to the pool and closes it.
func (e *Endpoint) release() {
	e.ops.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	for {
		h, ok := e.rxq.PopFront()
		if !ok {
			break
		}
		e.stats.RxDropped++
		e.pool.Release(h)
	}
	for _, rec := range e.inflight {
		e.pool.Release(rec.buf)
	}
	e.inflight = nil
	e.waiters = [2]bool{}
	e.stopped = false
	e.delivering = false
	e.rxState = api.InterruptDriven
	e.pool.Close()
}
