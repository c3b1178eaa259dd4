// File: adapters/poller_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PollerAdapter runs deferred poll cycles on an EventLoop goroutine.

package adapters

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/internal/concurrency"
)

// DefaultPollQueue is the request queue capacity used when none is given.
const DefaultPollQueue = 64

// PollerAdapter implements api.PollScheduler. Each request runs one
// Poll(budget) cycle; while the poller stays in polling state the
// request is posted again, so other pollers get their turn between
// cycles.
type PollerAdapter struct {
	eventLoop *concurrency.EventLoop
	logger    log.Interface

	mu      sync.Mutex
	running bool
	stopped bool

	cycles    atomic.Uint64
	delivered atomic.Uint64
	overflows atomic.Uint64
}

var _ api.PollScheduler = (*PollerAdapter)(nil)

type pollRequest struct {
	poller api.Poller
	budget int
}

// NewPollerAdapter creates a stopped adapter. queueSize <= 0 selects
// DefaultPollQueue.
func NewPollerAdapter(queueSize int, logger log.Interface) *PollerAdapter {
	if queueSize <= 0 {
		queueSize = DefaultPollQueue
	}
	if logger == nil {
		logger = log.Log
	}
	p := &PollerAdapter{
		eventLoop: concurrency.NewEventLoop(1, queueSize),
		logger:    logger,
	}
	p.eventLoop.RegisterHandler(&pollBridge{owner: p})
	return p
}

// Inner glue struct: adapts poll requests to EventHandler
type pollBridge struct{ owner *PollerAdapter }

func (pb *pollBridge) HandleEvent(ev concurrency.Event) {
	if req, ok := ev.Data.(pollRequest); ok {
		pb.owner.runCycle(req)
	}
}

// Start launches the event loop goroutine. It is a no-op when already
// running or stopped.
func (p *PollerAdapter) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return
	}
	p.running = true
	go p.eventLoop.Run()
}

// SchedulePoll implements api.PollScheduler.
func (p *PollerAdapter) SchedulePoll(pl api.Poller, budget int) {
	p.post(pollRequest{poller: pl, budget: budget})
}

func (p *PollerAdapter) post(req pollRequest) {
	if p.eventLoop.Post(concurrency.Event{Data: req}) {
		return
	}
	// A lost request would strand the frames of its poller.
	p.overflows.Add(1)
	p.logger.Warn("poll queue full, retrying")
	go func() {
		for !p.isStopped() {
			if p.eventLoop.Post(concurrency.Event{Data: req}) {
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()
}

func (p *PollerAdapter) runCycle(req pollRequest) {
	n, err := req.poller.Poll(req.budget)
	p.delivered.Add(uint64(n))
	p.cycles.Add(1)
	switch {
	case errors.Is(err, api.ErrClosed):
		return
	case err != nil:
		p.logger.WithError(err).Error("poll cycle failed")
		return
	}
	if req.poller.RxState() == api.Polling && !p.isStopped() {
		p.post(req)
	}
}

func (p *PollerAdapter) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Cycles returns the number of poll cycles run.
func (p *PollerAdapter) Cycles() uint64 { return p.cycles.Load() }

// Delivered returns the number of frames consumed by all cycles.
func (p *PollerAdapter) Delivered() uint64 { return p.delivered.Load() }

// Overflows returns how often the request queue was found full.
func (p *PollerAdapter) Overflows() uint64 { return p.overflows.Load() }

// Pending returns the number of queued requests.
func (p *PollerAdapter) Pending() int { return p.eventLoop.Pending() }

// Stop terminates the event loop and waits for a running cycle.
func (p *PollerAdapter) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.eventLoop.Stop()
}
