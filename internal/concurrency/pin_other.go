//go:build !linux
// +build !linux

// Package concurrency
// Author: momentics <momentics@gmail.com>
//
// Thread pinning fallback for platforms without sched_setaffinity.

package concurrency

import "runtime"

// PinCurrentThread locks the calling goroutine to its OS thread. CPU
// affinity is not available here.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID >= 0 {
		return ErrAffinityNotSupported
	}
	return nil
}

// UnpinCurrentThread releases the OS thread lock taken by PinCurrentThread.
func UnpinCurrentThread() {
	runtime.UnlockOSThread()
}
