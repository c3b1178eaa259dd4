// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the upper-layer contract.

package fake

import (
	"sync"

	"github.com/momentics/netpair/api"
)

// Upper is a recording implementation of api.UpperLayer.
type Upper struct {
	mu         sync.Mutex
	frames     [2][][]byte
	resumes    [2]int
	deliverErr error
	onDeliver  func(id api.EndpointID, frame []byte)
	onResume   func(id api.EndpointID)
	changed    chan struct{}
}

var _ api.UpperLayer = (*Upper)(nil)

// NewUpper creates an empty recorder.
func NewUpper() *Upper {
	return &Upper{changed: make(chan struct{}, 1)}
}

// DeliverFrame implements api.UpperLayer.DeliverFrame.
func (u *Upper) DeliverFrame(id api.EndpointID, frame []byte) error {
	u.mu.Lock()
	if u.deliverErr != nil {
		err := u.deliverErr
		u.mu.Unlock()
		return err
	}
	u.frames[id] = append(u.frames[id], frame)
	hook := u.onDeliver
	u.mu.Unlock()

	u.signal()
	if hook != nil {
		hook(id, frame)
	}
	return nil
}

// ResumeTransmit implements api.UpperLayer.ResumeTransmit.
func (u *Upper) ResumeTransmit(id api.EndpointID) {
	u.mu.Lock()
	u.resumes[id]++
	hook := u.onResume
	u.mu.Unlock()

	u.signal()
	if hook != nil {
		hook(id)
	}
}

// SetDeliverError makes DeliverFrame refuse frames with err. A nil err
// restores normal delivery.
func (u *Upper) SetDeliverError(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deliverErr = err
}

// OnDeliver installs a hook run after every accepted frame.
func (u *Upper) OnDeliver(fn func(id api.EndpointID, frame []byte)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onDeliver = fn
}

// OnResume installs a hook run after every resume signal.
func (u *Upper) OnResume(fn func(id api.EndpointID)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onResume = fn
}

// Frames returns a copy of the frames delivered to id, oldest first.
func (u *Upper) Frames(id api.EndpointID) [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([][]byte, len(u.frames[id]))
	copy(out, u.frames[id])
	return out
}

// Delivered returns the number of frames delivered to id.
func (u *Upper) Delivered(id api.EndpointID) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.frames[id])
}

// Resumes returns the number of resume signals sent to id.
func (u *Upper) Resumes(id api.EndpointID) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.resumes[id]
}

// Changed is signaled, coalesced, after every delivery or resume.
func (u *Upper) Changed() <-chan struct{} {
	return u.changed
}

// Reset forgets every recorded event.
func (u *Upper) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.frames = [2][][]byte{}
	u.resumes = [2]int{}
}

func (u *Upper) signal() {
	select {
	case u.changed <- struct{}{}:
	default:
	}
}
