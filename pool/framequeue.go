// File: pool/framequeue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FIFO of buffer handles awaiting upward delivery.

package pool

import "github.com/eapache/queue"

// FrameQueue holds queued slots in arrival order. Its length is bounded
// by the capacity of the pools feeding it. Not safe for concurrent use.
type FrameQueue struct {
	q *queue.Queue
}

// NewFrameQueue creates an empty queue.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{q: queue.New()}
}

// PushBack appends h.
func (fq *FrameQueue) PushBack(h Handle) {
	fq.q.Add(h)
}

// PopFront removes and returns the oldest handle; ok is false if empty.
func (fq *FrameQueue) PopFront() (h Handle, ok bool) {
	if fq.q.Length() == 0 {
		return Handle{}, false
	}
	h = fq.q.Peek().(Handle)
	fq.q.Remove()
	return h, true
}

// Len returns the number of queued handles.
func (fq *FrameQueue) Len() int {
	return fq.q.Length()
}
