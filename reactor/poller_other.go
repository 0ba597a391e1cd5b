//go:build !linux
// +build !linux

// File: reactor/poller_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/hioload-httpd/api"

// NewPoller returns an error for unsupported platforms.
func NewPoller() (Poller, error) {
	return nil, api.ErrNotSupported
}

func newWakeFD() (int, error) { return -1, api.ErrNotSupported }
func signalWakeFD(int) error { return api.ErrNotSupported }
func drainWakeFD(int) {}
func newTickPipe() (int, int, error) { return -1, -1, api.ErrNotSupported }
