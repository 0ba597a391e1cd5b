// File: reactor/events.go
// Author: momentics <momentics@gmail.com>

package reactor

import "strings"

// Events is a platform-neutral readiness/interest bitmask.
type Events uint32

const (
	EventReadable Events = 1 << iota
	EventWritable
	EventError
	EventHangup
	// EventPeerClosed reports that the peer shut down its writing half.
	EventPeerClosed
)

// Interest sets used by connection sockets. A connection is armed for exactly
// one I/O direction at a time; the error and hangup bits are always present.
const (
	ConnReadInterest  = EventReadable | EventPeerClosed | EventError | EventHangup
	ConnWriteInterest = EventWritable | EventPeerClosed | EventError | EventHangup
)

func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, b := range []struct {
		bit  Events
		name string
	}{
		{EventReadable, "read"},
		{EventWritable, "write"},
		{EventError, "error"},
		{EventHangup, "hangup"},
		{EventPeerClosed, "peer-closed"},
	} {
		if e&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}
