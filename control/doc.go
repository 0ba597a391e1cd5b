// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, counters and debug introspection for the server.
//
// Provides concurrent-safe primitives:
//   - ConfigStore: snapshot reads, validated updates, synchronous reload listeners
//   - MetricsRegistry: sharded int64 counters
//   - DebugProbes: named functions evaluated on demand
package control
