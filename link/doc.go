// Package link
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Software-only point-to-point link between two emulated Ethernet-class
// interfaces. A transmit on one Endpoint stages the frame in a buffer of
// its own pool, copies it into a buffer of the peer's pool, queues it on
// the peer and raises FrameReady there; the sender then receives
// TransmitComplete, or, when the lockup fault injection fires, waits for
// the Watchdog to synthesize it.
//
// Lock discipline: every Endpoint has one mutex covering its pool,
// receive queue, in-flight transmit records, counters and states. No
// frame is copied and no upper-layer callback runs while it is held, and
// the two endpoint mutexes are never held together.
package link
