// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Thread-safe configuration store with validation and reload propagation.

package control

import (
	"sync"
)

// ConfigStore is a dynamic key/value map with snapshot reads and listeners.
type ConfigStore struct {
	mu        sync.RWMutex
	config    map[string]any
	validate  func(update map[string]any) error
	listeners []func(snapshot map[string]any)
}

// NewConfigStore initializes a new config store with empty data.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		config: make(map[string]any),
	}
}

// GetSnapshot returns a copy of all config values.
func (cs *ConfigStore) GetSnapshot() map[string]any {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.snapshotLocked()
}

func (cs *ConfigStore) snapshotLocked() map[string]any {
	out := make(map[string]any, len(cs.config))
	for k, v := range cs.config {
		out[k] = v
	}
	return out
}

// SetValidator installs a check run against every update before it is
// merged. A rejected update leaves the store unchanged.
func (cs *ConfigStore) SetValidator(fn func(update map[string]any) error) {
	cs.mu.Lock()
	cs.validate = fn
	cs.mu.Unlock()
}

// SetConfig merges new values and notifies listeners with the merged
// snapshot. Listeners run synchronously on the caller's goroutine, after
// the lock is released.
func (cs *ConfigStore) SetConfig(update map[string]any) error {
	cs.mu.Lock()
	if cs.validate != nil {
		if err := cs.validate(update); err != nil {
			cs.mu.Unlock()
			return err
		}
	}
	for k, v := range update {
		cs.config[k] = v
	}
	snap := cs.snapshotLocked()
	listeners := append(([]func(map[string]any))(nil), cs.listeners...)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

// Publish stores values without validation or notification. Used to seed
// the effective configuration at startup.
func (cs *ConfigStore) Publish(values map[string]any) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for k, v := range values {
		cs.config[k] = v
	}
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(snapshot map[string]any)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
