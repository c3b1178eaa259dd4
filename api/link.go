// File: api/link.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts between the emulated link and the frame transport layer above it.

package api

// UpperLayer is the frame transport layer sitting on top of the pair.
type UpperLayer interface {
	// DeliverFrame hands one received frame upward. The slice belongs to
	// the callee. A non-nil error counts the frame as dropped.
	DeliverFrame(id EndpointID, frame []byte) error

	// ResumeTransmit tells the upper layer that the endpoint accepts
	// frames again after an ErrSuspended.
	ResumeTransmit(id EndpointID)
}

// Transmitter is the transmit side of an endpoint as seen from above.
type Transmitter interface {
	// Transmit offers one frame. It never blocks on backpressure.
	Transmit(frame []byte) error

	// SetMTU changes the maximum transmission unit.
	SetMTU(mtu int) error
}

// StatsReporter exposes running counters.
type StatsReporter interface {
	Stats() Stats
}
