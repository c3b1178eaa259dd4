// File: link/dispatcher.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Notification discipline of the pair.

package link

import (
	"sync"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/pool"
)

// Dispatcher routes FrameReady and TransmitComplete events to endpoints.
// In synchronous mode FrameReady drains the receive queue inline; in
// budgeted mode it masks further notifications and hands the endpoint to
// the PollScheduler.
type Dispatcher struct {
	mode   api.Mode
	budget int
	polls  api.PollScheduler
}

func newDispatcher(mode api.Mode, budget int, polls api.PollScheduler) *Dispatcher {
	if polls == nil {
		polls = &ManualPoll{}
	}
	return &Dispatcher{mode: mode, budget: budget, polls: polls}
}

// Mode returns the notification discipline.
func (d *Dispatcher) Mode() api.Mode { return d.mode }

// Budget returns the per-cycle poll budget.
func (d *Dispatcher) Budget() int { return d.budget }

// PollScheduler returns the scheduler of deferred poll cycles.
func (d *Dispatcher) PollScheduler() api.PollScheduler { return d.polls }

// Notify delivers kind to ep.
func (d *Dispatcher) Notify(ep *Endpoint, kind api.NotifyKind) {
	ep.OnNotify(kind)
}

// completed delivers TransmitComplete for the transmit staged in buffer h.
func (d *Dispatcher) completed(ep *Endpoint, h pool.Handle) {
	ep.complete(h)
}

// frameReady runs the receive side of a notification.
func (d *Dispatcher) frameReady(ep *Endpoint) {
	if d.mode == api.ModeSync {
		ep.drain()
		return
	}
	ep.mu.Lock()
	if ep.closed || ep.rxState == api.Polling {
		ep.mu.Unlock()
		return
	}
	ep.rxState = api.Polling
	ep.mu.Unlock()
	d.polls.SchedulePoll(ep, d.budget)
}

// ManualPoll is a PollScheduler that only records requests. The owner
// runs the poll cycles by calling Poll on the endpoints.
type ManualPoll struct {
	mu       sync.Mutex
	pending  []api.Poller
	requests int
}

var _ api.PollScheduler = (*ManualPoll)(nil)

// SchedulePoll implements api.PollScheduler.
func (m *ManualPoll) SchedulePoll(p api.Poller, budget int) {
	m.mu.Lock()
	m.pending = append(m.pending, p)
	m.requests++
	m.mu.Unlock()
}

// Requests returns how many poll cycles were requested so far.
func (m *ManualPoll) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// Run polls every requested endpoint with budget until each one is back
// to interrupt-driven notification, and returns the frames handled.
func (m *ManualPoll) Run(budget int) (int, error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	total := 0
	for _, p := range pending {
		for p.RxState() == api.Polling {
			n, err := p.Poll(budget)
			total += n
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}
