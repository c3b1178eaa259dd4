// File: link/fabric.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package link

import (
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/pool"
)

// Fabric joins two endpoints. It is immutable after NewFabric returns,
// so peer lookup takes no lock.
type Fabric struct {
	cfg      Config
	eps      [2]*Endpoint
	disp     *Dispatcher
	watchdog *Watchdog
	upper    api.UpperLayer
	logger   log.Interface

	closeOnce sync.Once
}

// NewFabric validates cfg and builds both endpoints with their pools,
// queues, the dispatcher and the watchdog.
func NewFabric(cfg Config, upper api.UpperLayer, opts ...Option) (*Fabric, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if upper == nil {
		return nil, errors.Wrap(api.ErrInvalidArgument, "nil upper layer")
	}
	o := &options{logger: log.Log}
	for _, opt := range opts {
		opt(o)
	}

	f := &Fabric{
		cfg:      cfg,
		disp:     newDispatcher(cfg.Mode, cfg.PollBudget, o.polls),
		watchdog: NewWatchdog(cfg.WatchdogTimeout, o.logger),
		upper:    upper,
		logger:   o.logger,
	}
	for _, id := range []api.EndpointID{api.Endpoint0, api.Endpoint1} {
		p, err := pool.New(cfg.PoolSize, api.MaxFrameLen)
		if err != nil {
			f.watchdog.Close()
			return nil, err
		}
		f.eps[id] = &Endpoint{
			id:     id,
			name:   id.String(),
			hwaddr: HardwareAddrOf(id),
			fabric: f,
			disp:   f.disp,
			upper:  upper,
			logger: o.logger.WithFields(log.Fields{
				"endpoint": id.String(),
				"peer":     id.Peer().String(),
			}),
			pool:   p,
			rxq:    pool.NewFrameQueue(),
			mtu:    cfg.MTU,
			lockup: cfg.LockupModulus,
		}
	}
	for _, ep := range f.eps {
		ep.logger.WithFields(log.Fields{
			"mode": cfg.Mode.String(),
			"pool": cfg.PoolSize,
			"mtu":  cfg.MTU,
		}).Info("link up")
	}
	return f, nil
}

// Config returns the construction parameters.
func (f *Fabric) Config() Config { return f.cfg }

// Dispatcher returns the shared notification dispatcher.
func (f *Fabric) Dispatcher() *Dispatcher { return f.disp }

// Watchdog returns the transmit timeout monitor.
func (f *Fabric) Watchdog() *Watchdog { return f.watchdog }

// Endpoint returns the endpoint with the given id.
func (f *Fabric) Endpoint(id api.EndpointID) (*Endpoint, error) {
	if !id.Valid() {
		return nil, errors.Wrapf(api.ErrUnknownEndpoint, "endpoint %d", int(id))
	}
	return f.eps[id], nil
}

// Peer returns the opposite endpoint of ep.
func (f *Fabric) Peer(ep *Endpoint) *Endpoint {
	return f.eps[ep.id.Peer()]
}

// Endpoints returns both endpoints, endpoint 0 first.
func (f *Fabric) Endpoints() []*Endpoint {
	return []*Endpoint{f.eps[0], f.eps[1]}
}

// Close tears the pair down. New operations fail with api.ErrClosed,
// operations in progress finish first, every queued frame is dropped and
// every buffer goes back to its pool before the pool closes. Close is
// idempotent.
func (f *Fabric) Close() error {
	f.closeOnce.Do(func() {
		for _, ep := range f.eps {
			ep.shutdown()
		}
		for _, ep := range f.eps {
			f.watchdog.Disarm(ep)
		}
		f.watchdog.Close()
		for _, ep := range f.eps {
			ep.release()
			ep.logger.Info("link down")
		}
	})
	return nil
}

// wake sends ResumeTransmit to every endpoint flagged in w.
func (f *Fabric) wake(w [2]bool) {
	for id, waiting := range w {
		if waiting {
			f.eps[id].logger.Debug("resuming transmit")
			f.upper.ResumeTransmit(api.EndpointID(id))
		}
	}
}
