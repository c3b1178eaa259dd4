// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer scheduler running callbacks on its own goroutine and monotonic clock.

package concurrency

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/netpair/api"
)

// Ensure compile-time interface compliance.
var _ api.Scheduler = (*Scheduler)(nil)

const (
	taskPending int32 = iota
	taskFired
	taskCanceled
)

// timerTask is a scheduled callback; it implements api.Cancelable.
type timerTask struct {
	when  int64
	seq   uint64
	fn    func()
	index int // heap index, -1 once popped or removed
	state atomic.Int32
	done  chan struct{}
	owner *Scheduler
}

func (t *timerTask) Cancel() error {
	return t.owner.Cancel(t)
}

func (t *timerTask) Done() <-chan struct{} {
	return t.done
}

func (t *timerTask) Err() error {
	if t.state.Load() == taskCanceled {
		return ErrTaskCanceled
	}
	return nil
}

type taskHeap []*timerTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].when == h[j].when {
		return h[i].seq < h[j].seq
	}
	return h[i].when < h[j].when
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*timerTask)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler executes callbacks after a delay. Callbacks run sequentially
// on the scheduler goroutine and must not block for long.
type Scheduler struct {
	mu     sync.Mutex
	timerQ taskHeap
	seq    uint64
	closed bool
	epoch  time.Time
	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewScheduler starts a scheduler goroutine.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		epoch:  time.Now(),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Now returns monotonic time in nanoseconds since the scheduler started.
func (s *Scheduler) Now() int64 {
	return int64(time.Since(s.epoch))
}

// Schedule runs fn once delayNanos have elapsed.
func (s *Scheduler) Schedule(delayNanos int64, fn func()) (api.Cancelable, error) {
	if delayNanos < 0 {
		delayNanos = 0
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	s.seq++
	t := &timerTask{
		when:  s.Now() + delayNanos,
		seq:   s.seq,
		fn:    fn,
		done:  make(chan struct{}),
		owner: s,
	}
	heap.Push(&s.timerQ, t)
	head := s.timerQ[0] == t
	s.mu.Unlock()
	if head {
		s.wake()
	}
	return t, nil
}

// Cancel removes a pending task. Canceling a task that already ran or
// was canceled is a no-op.
func (s *Scheduler) Cancel(c api.Cancelable) error {
	t, ok := c.(*timerTask)
	if !ok || t.owner != s {
		return ErrForeignTask
	}
	if !t.state.CompareAndSwap(taskPending, taskCanceled) {
		return nil
	}
	s.mu.Lock()
	if t.index >= 0 {
		heap.Remove(&s.timerQ, t.index)
	}
	s.mu.Unlock()
	close(t.done)
	return nil
}

// Pending returns the number of tasks waiting to run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerQ.Len()
}

// Close stops the scheduler goroutine. Pending tasks are canceled.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	pending := s.timerQ
	s.timerQ = nil
	for _, t := range pending {
		t.index = -1
	}
	s.mu.Unlock()
	close(s.stop)
	<-s.done
	for _, t := range pending {
		if t.state.CompareAndSwap(taskPending, taskCanceled) {
			close(t.done)
		}
	}
}

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		s.mu.Lock()
		if s.timerQ.Len() == 0 {
			s.mu.Unlock()
			select {
			case <-s.notify:
			case <-s.stop:
				return
			}
			continue
		}
		task := s.timerQ[0]
		wait := task.when - s.Now()
		if wait <= 0 {
			heap.Pop(&s.timerQ)
			s.mu.Unlock()
			if task.state.CompareAndSwap(taskPending, taskFired) {
				task.fn()
				close(task.done)
			}
			continue
		}
		s.mu.Unlock()

		timer.Reset(time.Duration(wait))
		select {
		case <-timer.C:
		case <-s.notify:
			timer.Stop()
		case <-s.stop:
			timer.Stop()
			return
		}
	}
}
