// File: api/control.go
// Package api defines Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control exposes the effective configuration, runtime counters and debug
// probes of a running server.
type Control interface {
	// GetConfig returns a snapshot of the published configuration.
	GetConfig() map[string]any
	// SetConfig merges values into the configuration and notifies reload listeners.
	SetConfig(cfg map[string]any) error
	// Stats merges counters and probe output; probe keys are prefixed with "debug.".
	Stats() map[string]any
	// OnReload registers a listener invoked with the merged snapshot after SetConfig.
	OnReload(fn func(snapshot map[string]any))
	// RegisterDebugProbe installs a named probe evaluated on every Stats call.
	RegisterDebugProbe(name string, fn func() any)
	// IncCounter adds delta to a named counter.
	IncCounter(name string, delta int64)
}
