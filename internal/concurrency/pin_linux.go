//go:build linux
// +build linux

// Package concurrency
// Author: momentics <momentics@gmail.com>
//
// Thread pinning for reactor goroutines via sched_setaffinity.

package concurrency

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PinCurrentThread locks the calling goroutine to its OS thread and, when
// cpuID >= 0, restricts that thread to the given CPU. The lock is kept even
// if setting the affinity fails.
func PinCurrentThread(cpuID int) error {
	runtime.LockOSThread()
	if cpuID < 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID % runtime.NumCPU())
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrapf(err, "sched_setaffinity cpu %d", cpuID)
	}
	return nil
}

// UnpinCurrentThread releases the OS thread lock taken by PinCurrentThread.
func UnpinCurrentThread() {
	runtime.UnlockOSThread()
}
