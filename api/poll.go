// Package api
// Author: momentics
//
// Budgeted poll abstraction: bounded-count drain of a receive queue.

package api

// Poller represents a poll-mode receive path.
type Poller interface {
	// Poll handles up to budget frames; returns number delivered and error.
	Poll(budget int) (handled int, err error)

	// RxState reports whether the poller is still scheduled.
	RxState() RxState
}

// PollScheduler runs deferred poll cycles. SchedulePoll must not poll
// inline: it is called from the notification path.
type PollScheduler interface {
	SchedulePoll(p Poller, budget int)
}
