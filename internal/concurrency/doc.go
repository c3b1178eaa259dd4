// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for netpair: a timer Scheduler that drives the
// transmit watchdog on its own goroutine and clock, a bounded MPMC
// lock-free queue, and an EventLoop that runs deferred poll cycles.
package concurrency
