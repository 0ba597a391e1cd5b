// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"runtime"
	"time"

	"github.com/momentics/hioload-httpd/api"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr       string        // IPv4 bind address, e.g. ":6688"; port 0 picks one
	Workers          int           // worker reactors
	MaxConns         int           // global concurrent-connection ceiling
	TableSize        int           // fd-indexed connection table per reactor
	MaxEvents        int           // readiness notifications per wait
	PollTimeout      time.Duration // upper bound of one wait
	SlotNum          int           // timing wheel slots
	SlotInterval     time.Duration // timing wheel tick
	HeaderTimeout    time.Duration
	BodyTimeout      time.Duration
	KeepAliveTimeout time.Duration
	MaxRequestBytes  int
	ServerName       string
	DocRoot          string // directory served for GET/HEAD
	CPUAffinity      bool   // pin reactor threads to CPUs
	Backlog          int
}

// DefaultWorkers is one reactor per CPU, minus the acceptor's, at least one.
func DefaultWorkers() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:       ":6688",
		Workers:          DefaultWorkers(),
		MaxConns:         100000,
		TableSize:        65536,
		MaxEvents:        4096,
		PollTimeout:      10 * time.Second,
		SlotNum:          60,
		SlotInterval:     time.Second,
		HeaderTimeout:    5 * time.Second,
		BodyTimeout:      5 * time.Second,
		KeepAliveTimeout: 60 * time.Second,
		MaxRequestBytes:  1 << 20,
		ServerName:       "hioload-httpd",
		DocRoot:          ".",
		Backlog:          2048,
	}
}

// Validate reports the first invalid field as an *api.Error.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		ok   bool
	}{
		{"workers", c.Workers > 0},
		{"max_conns", c.MaxConns > 0},
		{"table_size", c.TableSize > 0},
		{"max_events", c.MaxEvents > 0},
		{"poll_timeout", c.PollTimeout > 0},
		{"slot_num", c.SlotNum > 0},
		{"slot_interval", c.SlotInterval > 0},
		{"header_timeout", c.HeaderTimeout > 0},
		{"body_timeout", c.BodyTimeout > 0},
		{"keep_alive_timeout", c.KeepAliveTimeout > 0},
		{"max_request_bytes", c.MaxRequestBytes > 0},
		{"backlog", c.Backlog > 0},
	}
	if c.ListenAddr == "" {
		return api.NewError(api.ErrCodeInvalidArgument, "listen address is empty").
			WithContext("field", "listen_addr")
	}
	for _, p := range positive {
		if !p.ok {
			return api.NewError(api.ErrCodeInvalidArgument, "value must be positive").
				WithContext("field", p.name)
		}
	}
	return nil
}

// snapshot is the effective configuration published through api.Control.
func (c *Config) snapshot() map[string]any {
	return map[string]any{
		"listen_addr":        c.ListenAddr,
		"workers":            c.Workers,
		"max_conns":          c.MaxConns,
		"table_size":         c.TableSize,
		"max_events":         c.MaxEvents,
		"poll_timeout_ms":    c.PollTimeout.Milliseconds(),
		"slot_num":           c.SlotNum,
		"slot_interval_ms":   c.SlotInterval.Milliseconds(),
		"header_timeout_ms":  c.HeaderTimeout.Milliseconds(),
		"body_timeout_ms":    c.BodyTimeout.Milliseconds(),
		"keep_alive_timeout": c.KeepAliveTimeout.Milliseconds(),
		"max_request_bytes":  c.MaxRequestBytes,
		"server_name":        c.ServerName,
		"doc_root":           c.DocRoot,
		"cpu_affinity":       c.CPUAffinity,
		"backlog":            c.Backlog,
	}
}
