// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer layer for netpair endpoints.
// Pool is a fixed-capacity arena of frame slots handed out by index;
// FrameQueue keeps queued slots in FIFO order until delivery.
// Neither type locks: the owning endpoint's mutex covers both.
package pool
