// File: link/watchdog.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Transmit timeout detection and recovery.

package link

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/internal/concurrency"
)

// Watchdog notices transmits whose completion never arrived and
// synthesizes it. Checks run on the goroutine of its own Scheduler, never
// on the transmit or receive path.
type Watchdog struct {
	timeout time.Duration
	sched   *concurrency.Scheduler
	logger  log.Interface

	mu     sync.Mutex
	timers map[*Endpoint]api.Cancelable
	closed bool

	recoveries atomic.Uint64
}

// NewWatchdog starts a watchdog that treats transmits older than timeout
// as lost.
func NewWatchdog(timeout time.Duration, logger log.Interface) *Watchdog {
	return &Watchdog{
		timeout: timeout,
		sched:   concurrency.NewScheduler(),
		logger:  logger,
		timers:  make(map[*Endpoint]api.Cancelable),
	}
}

// Timeout returns the stall threshold.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Recoveries returns the number of completions synthesized so far.
func (w *Watchdog) Recoveries() uint64 { return w.recoveries.Load() }

// Armed reports whether a check is pending for ep.
func (w *Watchdog) Armed(ep *Endpoint) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[ep]
	return ok
}

// Arm schedules a check at the deadline of the oldest pending transmit
// of ep. It does nothing when a check is already pending or nothing is
// pending.
func (w *Watchdog) Arm(ep *Endpoint) {
	deadline, ok := ep.oldestDeadline(w.timeout)
	if !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if _, armed := w.timers[ep]; armed {
		return
	}
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}
	task, err := w.sched.Schedule(int64(delay), func() { w.check(ep) })
	if err != nil {
		return
	}
	w.timers[ep] = task
}

// Disarm cancels the pending check of ep, if any.
func (w *Watchdog) Disarm(ep *Endpoint) {
	w.mu.Lock()
	task, ok := w.timers[ep]
	delete(w.timers, ep)
	w.mu.Unlock()
	if ok {
		_ = w.sched.Cancel(task)
	}
}

// Close cancels every pending check and stops the scheduler. It waits
// for a check that is already running.
func (w *Watchdog) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.timers = make(map[*Endpoint]api.Cancelable)
	w.mu.Unlock()
	w.sched.Close()
}

func (w *Watchdog) check(ep *Endpoint) {
	w.mu.Lock()
	delete(w.timers, ep)
	w.mu.Unlock()

	if stale := ep.expireStale(time.Now(), w.timeout); len(stale) > 0 {
		for _, h := range stale {
			ep.disp.completed(ep, h)
		}
		w.recoveries.Add(uint64(len(stale)))
		ep.logger.Warnf("transmit timeout, synthesized %d completion(s)", len(stale))
		ep.upper.ResumeTransmit(ep.id)
	}
	w.Arm(ep)
}
