// File: internal/concurrency/eventloop.go
// Package concurrency implements an event loop with adaptive backoff.
// Handlers are unregistered on Stop to avoid dead handlers retention.

package concurrency

import (
	"sync"
	"sync/atomic"
	"time"
)

type Event struct {
	Data interface{}
}

type EventHandler interface {
	HandleEvent(ev Event)
}

// maxBackoff caps the idle sleep of the loop.
const maxBackoff = time.Millisecond

type EventLoop struct {
	queue     *LockFreeQueue[Event]
	handlers  atomic.Pointer[[]EventHandler]
	batchSize int
	stopCh    chan struct{}
	stopOnce  sync.Once
	doneCh    chan struct{}
	running   int32
	backoffNs int64
}

// NewEventLoop creates a new EventLoop.
func NewEventLoop(batchSize, queueSize int) *EventLoop {
	if batchSize <= 0 {
		batchSize = 16
	}
	loop := &EventLoop{
		queue:     NewLockFreeQueue[Event](queueSize),
		batchSize: batchSize,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		backoffNs: 1,
	}
	loop.handlers.Store(&[]EventHandler{})
	return loop
}

func (el *EventLoop) Pending() int {
	return el.queue.Len()
}

func (el *EventLoop) RegisterHandler(h EventHandler) {
	for {
		old := el.handlers.Load()
		newSlice := append((*old)[:len(*old):len(*old)], h)
		if el.handlers.CompareAndSwap(old, &newSlice) {
			return
		}
	}
}

func (el *EventLoop) UnregisterHandler(h EventHandler) {
	for {
		old := el.handlers.Load()
		newSlice := make([]EventHandler, 0, len(*old))
		for _, hh := range *old {
			if hh != h {
				newSlice = append(newSlice, hh)
			}
		}
		if el.handlers.CompareAndSwap(old, &newSlice) {
			return
		}
	}
}

// Post enqueues ev; returns false if the queue is full.
func (el *EventLoop) Post(ev Event) bool {
	return el.queue.Enqueue(ev)
}

// Run processes events until Stop. Only the first call runs the loop.
func (el *EventLoop) Run() {
	if !atomic.CompareAndSwapInt32(&el.running, 0, 1) {
		return
	}
	defer func() {
		el.handlers.Store(&[]EventHandler{})
		close(el.doneCh)
	}()
	batch := make([]Event, el.batchSize)
	for {
		select {
		case <-el.stopCh:
			return
		default:
			processed := el.processBatch(batch)
			if processed == 0 {
				el.adaptiveBackoff()
			} else {
				atomic.StoreInt64(&el.backoffNs, 1)
			}
		}
	}
}

// Stop terminates Run and waits for it to return.
func (el *EventLoop) Stop() {
	el.stopOnce.Do(func() { close(el.stopCh) })
	if atomic.LoadInt32(&el.running) == 1 {
		<-el.doneCh
	}
}

func (el *EventLoop) processBatch(batch []Event) int {
	count := 0
	handlers := *el.handlers.Load()
	for i := 0; i < el.batchSize; i++ {
		ev, ok := el.queue.Dequeue()
		if !ok {
			break
		}
		batch[i] = ev
		count++
	}
	for i := 0; i < count; i++ {
		for _, h := range handlers {
			h.HandleEvent(batch[i])
		}
		batch[i] = Event{}
	}
	return count
}

func (el *EventLoop) adaptiveBackoff() {
	backoff := time.Duration(atomic.LoadInt64(&el.backoffNs))
	timer := time.NewTimer(backoff)
	select {
	case <-el.stopCh:
	case <-timer.C:
	}
	timer.Stop()
	next := backoff * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	atomic.StoreInt64(&el.backoffNs, int64(next))
}
