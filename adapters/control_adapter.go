// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control interface using control package primitives.

package adapters

import (
	"runtime"
	"sort"
	"sync"

	"github.com/momentics/netpair/api"
	"github.com/momentics/netpair/control"
)

type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes

	mu      sync.Mutex
	sources []func() map[string]any
}

var _ api.Control = (*ControlAdapter)(nil)

func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	adapter.debug.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

// SetConfig applies cfg atomically. A value refused by its validator
// yields an *api.Error with ErrCodeInvalidArgument and nothing changes.
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	if err := c.config.SetConfig(cfg); err != nil {
		keys := make([]string, 0, len(cfg))
		for k := range cfg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return api.NewError(api.ErrCodeInvalidArgument, err.Error()).
			WithContext("keys", keys).
			WithCause(api.ErrInvalidArgument)
	}
	return nil
}

// Stats refreshes the registry from every metrics source, then returns
// metrics and debug probe output in one map.
func (c *ControlAdapter) Stats() map[string]any {
	c.mu.Lock()
	sources := append([]func() map[string]any{}, c.sources...)
	c.mu.Unlock()
	for _, src := range sources {
		c.metrics.SetMany(src())
	}

	stats := c.metrics.GetSnapshot()
	debugStats := c.debug.DumpState()
	combined := make(map[string]any, len(stats)+len(debugStats))
	for k, v := range stats {
		combined[k] = v
	}
	for k, v := range debugStats {
		combined["debug."+k] = v
	}
	return combined
}

func (c *ControlAdapter) OnReload(fn func(changed map[string]any)) {
	c.config.OnReload(fn)
}

// RegisterValidator installs the check applied to key by SetConfig.
func (c *ControlAdapter) RegisterValidator(key string, v control.Validator) {
	c.config.RegisterValidator(key, v)
}

// RegisterMetricsSource adds fn to the sources read by Stats.
func (c *ControlAdapter) RegisterMetricsSource(fn func() map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, fn)
}

func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

func (c *ControlAdapter) SetMetrics(values map[string]any) {
	c.metrics.SetMany(values)
}

func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}
