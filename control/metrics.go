// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters shared by the acceptor and every reactor. Backed by a
// sharded concurrent map so unrelated counters do not contend.

package control

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// MetricsRegistry holds named int64 counters.
type MetricsRegistry struct {
	counters cmap.ConcurrentMap[string, int64]
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		counters: cmap.New[int64](),
	}
}

// Add increments key by delta, creating it at zero first.
func (mr *MetricsRegistry) Add(key string, delta int64) int64 {
	return mr.counters.Upsert(key, delta, func(exist bool, old, d int64) int64 {
		if exist {
			return old + d
		}
		return d
	})
}

// Set overwrites a counter.
func (mr *MetricsRegistry) Set(key string, value int64) {
	mr.counters.Set(key, value)
}

// Get returns a counter and whether it exists.
func (mr *MetricsRegistry) Get(key string) (int64, bool) {
	return mr.counters.Get(key)
}

// GetSnapshot returns the latest counters.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	items := mr.counters.Items()
	out := make(map[string]any, len(items))
	for k, v := range items {
		out[k] = v
	}
	return out
}
