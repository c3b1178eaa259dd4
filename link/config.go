// File: link/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package link

import (
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/momentics/netpair/api"
)

// Config holds the construction parameters of a pair. The same values
// apply to both endpoints.
type Config struct {
	PoolSize        int           // buffers per endpoint pool
	Mode            api.Mode      // notification discipline
	PollBudget      int           // frames per poll cycle in budgeted mode
	LockupModulus   int           // withhold every Nth completion, 0 disables
	WatchdogTimeout time.Duration // stalled transmit detection threshold
	MTU             int           // initial MTU of both endpoints
}

// Defaults mirror the parameters of the emulated driver.
const (
	DefaultPoolSize        = 8
	DefaultPollBudget      = 2
	DefaultWatchdogTimeout = 50 * time.Millisecond
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PoolSize:        DefaultPoolSize,
		Mode:            api.ModeSync,
		PollBudget:      DefaultPollBudget,
		LockupModulus:   0,
		WatchdogTimeout: DefaultWatchdogTimeout,
		MTU:             api.MaxMTU,
	}
}

// Validate rejects configurations the pair cannot be built with.
func (c Config) Validate() error {
	switch {
	case c.PoolSize < 1:
		return errors.Wrapf(api.ErrInvalidArgument, "pool size %d", c.PoolSize)
	case c.Mode != api.ModeSync && c.Mode != api.ModeBudgeted:
		return errors.Wrapf(api.ErrInvalidArgument, "mode %d", int(c.Mode))
	case c.Mode == api.ModeBudgeted && c.PollBudget < 1:
		return errors.Wrapf(api.ErrInvalidArgument, "poll budget %d", c.PollBudget)
	case c.LockupModulus < 0:
		return errors.Wrapf(api.ErrInvalidArgument, "lockup modulus %d", c.LockupModulus)
	case c.WatchdogTimeout <= 0:
		return errors.Wrapf(api.ErrInvalidArgument, "watchdog timeout %s", c.WatchdogTimeout)
	}
	return validMTU(c.MTU)
}

func validMTU(mtu int) error {
	if mtu < api.MinMTU || mtu > api.MaxMTU {
		return errors.Wrapf(api.ErrRejected, "mtu %d outside [%d, %d]", mtu, api.MinMTU, api.MaxMTU)
	}
	return nil
}

// Option is an option for NewFabric.
type Option func(o *options)

type options struct {
	logger log.Interface
	polls  api.PollScheduler
}

// WithLogger selects the logger. The default is log.Log.
func WithLogger(l log.Interface) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPollScheduler selects who runs deferred poll cycles in budgeted
// mode. The default is a ManualPoll, which only records requests.
func WithPollScheduler(ps api.PollScheduler) Option {
	return func(o *options) {
		o.polls = ps
	}
}
