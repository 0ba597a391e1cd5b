// File: reactor/channel.go
// Author: momentics <momentics@gmail.com>
//
// Channel is the registration unit of the reactor: one fd, the events it is
// interested in, the events last reported ready and up to four callbacks.

package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Callback is invoked by Dispatch on the owning loop's goroutine.
type Callback func()

// Channel binds a file descriptor to its interest set and callbacks.
// A Channel is owned by exactly one EventLoop once registered and must only
// be used from that loop's goroutine.
type Channel struct {
	fd       int
	conn     bool
	interest Events
	applied  Events // interest last handed to the poller
	ready    Events

	onRead  Callback
	onWrite Callback
	onError Callback
	onClose Callback

	closed bool
	log    *zap.Logger
}

// NewChannel wraps a listening or auxiliary descriptor.
func NewChannel(fd int) *Channel {
	return &Channel{fd: fd}
}

// NewConnChannel wraps an accepted connection socket. It can only be
// registered together with a Session.
func NewConnChannel(fd int) *Channel {
	return &Channel{fd: fd, conn: true}
}

func (c *Channel) FD() int { return c.fd }
func (c *Channel) IsConn() bool { return c.conn }
func (c *Channel) Interest() Events { return c.interest }
func (c *Channel) Ready() Events { return c.ready }
func (c *Channel) Closed() bool { return c.closed }
func (c *Channel) SetReady(r Events) { c.ready = r }

// SetInterest replaces the whole interest set. The change reaches the
// poller on the next EventLoop.Modify.
func (c *Channel) SetInterest(ev Events) { c.interest = ev }

func (c *Channel) SetReadHandler(cb Callback) { c.onRead = cb }
func (c *Channel) SetWriteHandler(cb Callback) { c.onWrite = cb }
func (c *Channel) SetErrorHandler(cb Callback) { c.onError = cb }
func (c *Channel) SetCloseHandler(cb Callback) { c.onClose = cb }

// SetLogger overrides the logger used to report missing callbacks.
func (c *Channel) SetLogger(l *zap.Logger) { c.log = l }

func (c *Channel) interestChanged() bool { return c.interest != c.applied }
func (c *Channel) markApplied() { c.applied = c.interest }

// Dispatch invokes exactly one callback for the last ready set: error first,
// then writable, then hangup or peer close, then readable.
func (c *Channel) Dispatch() {
	r := c.ready
	switch {
	case r&EventError != 0:
		c.call(c.onError, "error")
	case r&EventWritable != 0:
		c.call(c.onWrite, "write")
	case r&(EventHangup|EventPeerClosed) != 0:
		c.call(c.onClose, "close")
	case r&EventReadable != 0:
		c.call(c.onRead, "read")
	}
}

func (c *Channel) call(cb Callback, kind string) {
	if cb == nil {
		if c.log != nil {
			c.log.Warn("callback not registered",
				zap.String("callback", kind), zap.Int("fd", c.fd), zap.Stringer("ready", c.ready))
		}
		return
	}
	cb()
}

// Close closes the descriptor. Only the first call has an effect.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}
