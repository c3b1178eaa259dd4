// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with validated updates and reload propagation.

package control

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Validator checks one proposed value of a key.
type Validator func(value any) error

// ConfigStore is a dynamic key/value map with snapshot and listener support.
type ConfigStore struct {
	mu         sync.RWMutex
	config     map[string]any
	validators map[string]Validator
	listeners  []func(changed map[string]any)
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config:     make(map[string]any),
		validators: make(map[string]Validator),
	}
}

// RegisterValidator installs the check run for key on every update.
func (cs *ConfigStore) RegisterValidator(key string, v Validator) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.validators[key] = v
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// Get returns the value of one key.
func (cs *ConfigStore) Get(key string) (any, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	v, ok := cs.config[key]
	return v, ok
}

// SetConfig validates every value of newCfg and, when all pass, merges
// them and runs the reload listeners with the merged keys. Nothing is
// stored when a value fails validation. Listeners run on the calling
// goroutine, after the store lock is released.
func (cs *ConfigStore) SetConfig(newCfg map[string]any) error {
	cs.mu.Lock()
	keys := make([]string, 0, len(newCfg))
	for k := range newCfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v, ok := cs.validators[k]; ok {
			if err := v(newCfg[k]); err != nil {
				cs.mu.Unlock()
				return errors.Wrapf(err, "config key %q", k)
			}
		}
	}
	changed := make(map[string]any, len(newCfg))
	for k, v := range newCfg {
		cs.config[k] = v
		changed[k] = v
	}
	listeners := append([]func(map[string]any){}, cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(changed)
	}
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(changed map[string]any)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// IntValue converts a config value to int. Values decoded from JSON
// arrive as float64 and must be integral.
func IntValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, errors.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	default:
		return 0, errors.Errorf("%v (%T) is not a number", v, v)
	}
}
