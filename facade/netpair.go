// File: facade/netpair.go
// Unified facade layer for the netpair library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the NetPair struct, which aggregates the link fabric,
// the deferred poll engine, and the control surface behind a single facade.
// It plays the role of the device registration layer: New brings both
// endpoints up, Shutdown tears them down, and the transport-facing
// operations address an endpoint by its id.

package facade

import (
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/netpair/adapters"
	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/control"
	"github.com/momentics/netpair/link"
)

// Config holds parameters immutable per run.
// Only MTU and LockupModulus can be changed later, through the Control
// interface, which applies them to both endpoints.
type Config struct {
	PoolSize        int           // Buffers per endpoint pool
	Mode            api.Mode      // Synchronous or budgeted notification
	PollBudget      int           // Frames per poll cycle in budgeted mode
	LockupModulus   int           // Withhold every Nth transmit completion, 0 disables
	WatchdogTimeout time.Duration // Stalled transmit detection threshold
	MTU             int           // Initial MTU of both endpoints
	ManualPoll      bool          // Budgeted mode: the caller runs poll cycles
	PollQueue       int           // Capacity of the deferred poll request queue
	MetricsPrefix   string        // Namespace of exported Prometheus metrics
	Logger          log.Interface // Logger, nil selects log.Log
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:        link.DefaultPoolSize,        // 8 buffers per side
		Mode:            api.ModeSync,                // Deliver inline
		PollBudget:      link.DefaultPollBudget,      // 2 frames per cycle
		LockupModulus:   0,                           // No fault injection
		WatchdogTimeout: link.DefaultWatchdogTimeout, // 50ms
		MTU:             api.MaxMTU,                  // 1500
		ManualPoll:      false,                       // Poll goroutine drives budgeted mode
		PollQueue:       adapters.DefaultPollQueue,   // 64 pending poll requests
		MetricsPrefix:   "netpair",
	}
}

// Apply overlays the keys present in fc.
func (c *Config) Apply(fc *control.FileConfig) error {
	if fc == nil {
		return nil
	}
	if fc.PoolSize != nil {
		c.PoolSize = *fc.PoolSize
	}
	if fc.Mode != nil {
		m, err := api.ParseMode(*fc.Mode)
		if err != nil {
			return err
		}
		c.Mode = m
	}
	if fc.PollBudget != nil {
		c.PollBudget = *fc.PollBudget
	}
	if fc.Lockup != nil {
		c.LockupModulus = *fc.Lockup
	}
	if fc.WatchdogTimeout != nil {
		c.WatchdogTimeout = time.Duration(*fc.WatchdogTimeout)
	}
	if fc.MTU != nil {
		c.MTU = *fc.MTU
	}
	if fc.ManualPoll != nil {
		c.ManualPoll = *fc.ManualPoll
	}
	if fc.MetricsPrefix != nil {
		c.MetricsPrefix = *fc.MetricsPrefix
	}
	return nil
}

func (c *Config) link() link.Config {
	return link.Config{
		PoolSize:        c.PoolSize,
		Mode:            c.Mode,
		PollBudget:      c.PollBudget,
		LockupModulus:   c.LockupModulus,
		WatchdogTimeout: c.WatchdogTimeout,
		MTU:             c.MTU,
	}
}

// Control keys.
const (
	KeyMTU             = "mtu"
	KeyLockup          = "lockup"
	KeyPoolSize        = "pool_size"
	KeyMode            = "mode"
	KeyPollBudget      = "poll_budget"
	KeyWatchdogTimeout = "watchdog_timeout"
)

// NetPair is the main facade type.
// It implements api.GracefulShutdown to allow unified shutdown logic.
type NetPair struct {
	fabric    *link.Fabric
	poller    *adapters.PollerAdapter // nil unless budgeted with the poll goroutine
	manual    *link.ManualPoll        // nil unless budgeted with ManualPoll
	control   *adapters.ControlAdapter
	collector *control.Collector
	logger    log.Interface

	config *Config
	mu     sync.Mutex
	closed bool
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*NetPair)(nil)

// New constructs both endpoints with the given configuration and brings
// the link up. Frames received by either endpoint go to upper.
func New(cfg *Config, upper api.UpperLayer) (*NetPair, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfgCopy := *cfg
	h := &NetPair{config: &cfgCopy, logger: cfg.Logger}
	if h.logger == nil {
		h.logger = log.Log
	}

	opts := []link.Option{link.WithLogger(h.logger)}
	if cfg.Mode == api.ModeBudgeted {
		if cfg.ManualPoll {
			h.manual = &link.ManualPoll{}
			opts = append(opts, link.WithPollScheduler(h.manual))
		} else {
			h.poller = adapters.NewPollerAdapter(cfg.PollQueue, h.logger)
			opts = append(opts, link.WithPollScheduler(h.poller))
		}
	}
	fabric, err := link.NewFabric(cfg.link(), upper, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "facade: link init failure")
	}
	h.fabric = fabric
	if h.poller != nil {
		h.poller.Start()
	}

	h.control = adapters.NewControlAdapter()
	h.collector = control.NewCollector(cfg.MetricsPrefix, h.Snapshot)
	if err := h.initControl(); err != nil {
		h.Shutdown()
		return nil, err
	}
	return h, nil
}

// initControl publishes the configuration, installs validators and the
// reload hook, and registers metrics sources and debug probes.
func (h *NetPair) initControl() error {
	cfg := h.config
	if err := h.control.SetConfig(map[string]any{
		KeyMTU:             cfg.MTU,
		KeyLockup:          cfg.LockupModulus,
		KeyPoolSize:        cfg.PoolSize,
		KeyMode:            cfg.Mode.String(),
		KeyPollBudget:      cfg.PollBudget,
		KeyWatchdogTimeout: cfg.WatchdogTimeout.String(),
	}); err != nil {
		return err
	}

	h.control.RegisterValidator(KeyMTU, func(v any) error {
		n, err := control.IntValue(v)
		if err != nil {
			return err
		}
		if n < api.MinMTU || n > api.MaxMTU {
			return errors.Wrapf(api.ErrRejected, "mtu %d outside [%d, %d]", n, api.MinMTU, api.MaxMTU)
		}
		return nil
	})
	h.control.RegisterValidator(KeyLockup, func(v any) error {
		n, err := control.IntValue(v)
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.Wrapf(api.ErrRejected, "lockup modulus %d", n)
		}
		return nil
	})
	for k, v := range map[string]any{
		KeyPoolSize:        cfg.PoolSize,
		KeyMode:            cfg.Mode.String(),
		KeyPollBudget:      cfg.PollBudget,
		KeyWatchdogTimeout: cfg.WatchdogTimeout.String(),
	} {
		h.control.RegisterValidator(k, readOnly(k, v))
	}
	h.control.OnReload(h.reload)

	h.control.RegisterMetricsSource(h.metrics)
	for _, ep := range h.fabric.Endpoints() {
		h.control.RegisterDebugProbe(ep.Name()+".rx_state", func() any { return ep.RxState().String() })
		h.control.RegisterDebugProbe(ep.Name()+".stopped", func() any { return ep.Stopped() })
		h.control.RegisterDebugProbe(ep.Name()+".hwaddr", func() any { return ep.HardwareAddr().String() })
	}
	wd := h.fabric.Watchdog()
	h.control.RegisterDebugProbe("watchdog.recoveries", func() any { return wd.Recoveries() })
	if h.poller != nil {
		h.control.RegisterDebugProbe("poller.cycles", func() any { return h.poller.Cycles() })
	}
	return nil
}

func readOnly(key string, current any) control.Validator {
	return func(v any) error {
		if fmt.Sprint(v) != fmt.Sprint(current) {
			return errors.Wrapf(api.ErrRejected, "%s is fixed at construction", key)
		}
		return nil
	}
}

// reload applies validated runtime changes to both endpoints.
func (h *NetPair) reload(changed map[string]any) {
	for _, ep := range h.fabric.Endpoints() {
		if v, ok := changed[KeyMTU]; ok {
			n, _ := control.IntValue(v)
			if err := ep.SetMTU(n); err != nil {
				h.logger.WithError(err).WithField("endpoint", ep.Name()).Warn("mtu reload failed")
			}
		}
		if v, ok := changed[KeyLockup]; ok {
			n, _ := control.IntValue(v)
			if err := ep.SetLockup(n); err != nil {
				h.logger.WithError(err).WithField("endpoint", ep.Name()).Warn("lockup reload failed")
			}
		}
	}
	h.logger.WithField("keys", len(changed)).Info("configuration reloaded")
}

// metrics flattens the endpoint snapshots for the metrics registry.
func (h *NetPair) metrics() map[string]any {
	out := make(map[string]any)
	for _, s := range h.Snapshot() {
		out[s.Name+".rx_packets"] = s.Stats.RxPackets
		out[s.Name+".tx_packets"] = s.Stats.TxPackets
		out[s.Name+".rx_dropped"] = s.Stats.RxDropped
		out[s.Name+".tx_dropped"] = s.Stats.TxDropped
		out[s.Name+".tx_errors"] = s.Stats.TxErrors
		out[s.Name+".pool.free"] = s.Pool.Free
		out[s.Name+".pool.queued"] = s.Pool.Queued
		out[s.Name+".pool.inflight"] = s.Pool.InFlight
		out[s.Name+".tx_pending"] = s.Pending
	}
	return out
}

// Endpoint returns the endpoint with the given id.
func (h *NetPair) Endpoint(id api.EndpointID) (*link.Endpoint, error) {
	return h.fabric.Endpoint(id)
}

// Transmit offers frame to endpoint id. api.ErrSuspended asks the caller
// to hold further frames until ResumeTransmit.
func (h *NetPair) Transmit(id api.EndpointID, frame []byte) error {
	ep, err := h.fabric.Endpoint(id)
	if err != nil {
		return err
	}
	return ep.Transmit(frame)
}

// SetMTU changes the MTU of endpoint id only.
func (h *NetPair) SetMTU(id api.EndpointID, mtu int) error {
	ep, err := h.fabric.Endpoint(id)
	if err != nil {
		return err
	}
	return ep.SetMTU(mtu)
}

// Poll runs one budgeted poll cycle on endpoint id.
func (h *NetPair) Poll(id api.EndpointID, budget int) (int, error) {
	ep, err := h.fabric.Endpoint(id)
	if err != nil {
		return 0, err
	}
	return ep.Poll(budget)
}

// RunPendingPolls drains every poll request recorded in manual poll
// mode and returns the frames handled.
func (h *NetPair) RunPendingPolls() (int, error) {
	if h.manual == nil {
		return 0, api.ErrNotBudgeted
	}
	return h.manual.Run(h.config.PollBudget)
}

// Stats returns the counters of endpoint id.
func (h *NetPair) Stats(id api.EndpointID) (api.Stats, error) {
	ep, err := h.fabric.Endpoint(id)
	if err != nil {
		return api.Stats{}, err
	}
	return ep.Stats(), nil
}

// Snapshot returns the state of both endpoints.
func (h *NetPair) Snapshot() []control.EndpointSnapshot {
	eps := h.fabric.Endpoints()
	out := make([]control.EndpointSnapshot, 0, len(eps))
	for _, ep := range eps {
		out = append(out, control.EndpointSnapshot{
			Name:    ep.Name(),
			Stats:   ep.Stats(),
			Pool:    ep.PoolStats(),
			RxState: ep.RxState(),
			Pending: ep.Pending(),
		})
	}
	return out
}

// Control returns the Control interface for dynamic config and metrics.
func (h *NetPair) Control() api.Control {
	return h.control
}

// Collector returns the Prometheus collector of per-endpoint counters.
func (h *NetPair) Collector() prometheus.Collector {
	return h.collector
}

// Config returns a copy of the construction parameters.
func (h *NetPair) Config() Config {
	return *h.config
}

// Shutdown tears both endpoints down, then stops the poll goroutine.
// Subsequent calls have no effect.
func (h *NetPair) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.fabric != nil {
		if err := h.fabric.Close(); err != nil {
			return err
		}
	}
	if h.poller != nil {
		h.poller.Stop()
	}
	return nil
}
