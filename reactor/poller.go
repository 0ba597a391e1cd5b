// File: reactor/poller.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral readiness multiplexer contract.

package reactor

import "time"

// Ready is one readiness notification returned by Poller.Wait.
type Ready struct {
	FD     int
	Events Events
}

// Poller is an edge-triggered readiness multiplexer. Add and Modify always
// receive the complete interest set; implementations add edge-triggered
// mode themselves.
type Poller interface {
	Add(fd int, ev Events) error
	Modify(fd int, ev Events) error
	Remove(fd int) error
	// Wait blocks for at most timeout (negative means forever) and fills
	// ready. An interrupted or expired wait returns 0 and no error.
	Wait(ready []Ready, timeout time.Duration) (int, error)
	Close() error
}
