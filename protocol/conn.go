// File: protocol/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn is the per-connection HTTP state machine. It is driven exclusively by
// the callbacks of its Channel and by its idle timer, all of which run on
// the goroutine of the owning reactor.

package protocol

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/momentics/hioload-httpd/reactor"
)

// Owner is the reactor a connection is registered with.
type Owner interface {
	Modify(ch *reactor.Channel) error
	Deregister(ch *reactor.Channel) error
	RefreshTimer(id concurrency.TimerID, timeout time.Duration) bool
}

// maxRetainedInput bounds the input capacity kept across keep-alive resets.
const maxRetainedInput = 64 << 10

// Conn tracks one request/response exchange at a time.
type Conn struct {
	owner Owner
	ch    *reactor.Channel
	opts  *Options
	log   *zap.Logger
	timer concurrency.TimerID

	state State
	req   Request
	in    []byte
	off   int // bytes of in consumed by the parser

	out        []byte
	sent       int
	keepAlive  bool
	closeAfter bool // error response: tear down once flushed
	closed     bool
}

// NewConn binds the four channel callbacks to a new connection and arms the
// channel for reading. opts must already carry its defaults (see Normalize).
func NewConn(owner Owner, ch *reactor.Channel, opts *Options) *Conn {
	c := &Conn{
		owner: owner,
		ch:    ch,
		opts:  opts,
		log:   opts.Logger.With(zap.Int("fd", ch.FD())),
		req:   Request{Fields: make(map[string]string)},
	}
	ch.SetInterest(reactor.ConnReadInterest)
	ch.SetReadHandler(c.handleRead)
	ch.SetWriteHandler(c.handleWrite)
	ch.SetErrorHandler(c.handleError)
	ch.SetCloseHandler(c.handleClose)
	return c
}

// LinkTimer records the handle of the idle timer created at registration.
func (c *Conn) LinkTimer(id concurrency.TimerID) { c.timer = id }

// Timer returns the linked idle timer.
func (c *Conn) Timer() concurrency.TimerID { return c.timer }

func (c *Conn) Channel() *reactor.Channel { return c.ch }
func (c *Conn) State() State { return c.state }
func (c *Conn) Fields() map[string]string { return c.req.Fields }
func (c *Conn) Request() *Request { return &c.req }
func (c *Conn) Closed() bool { return c.closed }

// Buffered returns the number of unconsumed input bytes.
func (c *Conn) Buffered() int { return len(c.in) - c.off }

// Expire answers an idle connection with 408, tries a single non-blocking
// flush and tears the connection down whatever the outcome. A response
// already partly on the wire is cut short without a 408 page.
func (c *Conn) Expire() {
	if c.closed {
		return
	}
	if c.sent > 0 && c.sent < len(c.out) {
		c.log.Debug("connection timed out mid-response",
			zap.Int("sent", c.sent), zap.Int("pending", len(c.out)-c.sent))
		c.teardown()
		return
	}
	c.log.Debug("connection timed out", zap.Stringer("state", c.state))
	w := responseWriter{buf: c.out[:0]}
	w.errorPage(c.opts.Now(), c.opts.ServerName, 408, StatusText(408))
	c.out = w.buf
	c.sent = 0
	c.writeSome()
	c.teardown()
}

func (c *Conn) handleError() {
	c.log.Debug("socket error")
	c.teardown()
}

func (c *Conn) handleClose() {
	c.log.Debug("peer closed")
	c.teardown()
}

func (c *Conn) handleRead() {
	if c.closed {
		return
	}
	if c.state == StateStart && len(c.in) == 0 {
		c.refresh(c.opts.HeaderTimeout)
	}
	eof, err := c.readAvailable()
	if err != nil || eof {
		if err != nil {
			c.log.Debug("read failed", zap.Error(err))
		}
		c.teardown()
		return
	}
	if len(c.in) > c.opts.MaxRequestBytes {
		c.fail(413, "request exceeds size limit")
		return
	}
	c.advance()
}

// readAvailable drains the socket until it would block. Reading stops early
// once the size limit is passed.
func (c *Conn) readAvailable() (bool, error) {
	chunk := c.opts.Chunks.Get()
	defer c.opts.Chunks.Put(chunk)
	for {
		n, err := unix.Read(c.ch.FD(), *chunk)
		if n > 0 {
			c.in = append(c.in, (*chunk)[:n]...)
			if len(c.in) > c.opts.MaxRequestBytes {
				return false, nil
			}
			continue
		}
		switch err {
		case nil:
			return true, nil
		case unix.EAGAIN:
			return false, nil
		case unix.EINTR:
			continue
		default:
			return false, err
		}
	}
}

// advance moves the state machine as far as the buffered input allows.
func (c *Conn) advance() {
	for {
		switch c.state {
		case StateStart:
			off, res := parseRequestLine(c.in, c.off, &c.req)
			switch res {
			case parseAgain:
				return
			case parseError:
				c.fail(400, "request line has syntax error")
				return
			}
			c.off = off
			c.state = StateRequestLineParsed

		case StateRequestLineParsed:
			off, res := parseHeaders(c.in, c.off, &c.req)
			c.off = off
			switch res {
			case parseAgain:
				return
			case parseError:
				c.fail(400, "header lines have syntax error")
				return
			}
			c.state = StateHeadersParsed

		case StateHeadersParsed:
			if c.req.Method == MethodPost {
				c.state = StateBodyCheck
			} else {
				c.state = StateDispatched
			}

		case StateBodyCheck:
			c.refresh(c.opts.BodyTimeout)
			off, res := checkBody(c.in, c.off, &c.req)
			switch res {
			case parseAgain:
				return
			case parseError:
				c.fail(400, "missing or mismatched Content-Length")
				return
			}
			c.off = off
			c.state = StateDispatched

		case StateDispatched:
			c.keepAlive = c.req.KeepAlive()
			if !c.dispatch() {
				return
			}
			c.state = StateFinished

		case StateFinished:
			c.log.Debug("request served",
				zap.Stringer("method", c.req.Method), zap.String("target", c.req.Target))
			c.startWrite()
			return
		}
	}
}

// fail replaces any pending output with an error page and sends it. The
// connection is torn down once the page is flushed.
func (c *Conn) fail(code int, reason string) {
	c.log.Debug("request rejected", zap.Int("status", code), zap.String("reason", reason))
	w := responseWriter{buf: c.out[:0]}
	w.errorPage(c.opts.Now(), c.opts.ServerName, code, StatusText(code)+": "+reason)
	c.out = w.buf
	c.keepAlive = false
	c.closeAfter = true
	c.startWrite()
}

func (c *Conn) startWrite() {
	c.sent = 0
	c.flush()
}

func (c *Conn) handleWrite() {
	if c.closed {
		return
	}
	if c.sent >= len(c.out) {
		c.arm(reactor.ConnReadInterest)
		return
	}
	c.flush()
}

// flush writes as much as the socket takes. A short write arms write
// interest and resumes from handleWrite. A completed write either tears the
// connection down or re-arms read interest for the next request.
func (c *Conn) flush() {
	blocked, err := c.writeSome()
	if err != nil {
		c.log.Debug("write failed", zap.Error(err))
		c.teardown()
		return
	}
	if blocked {
		c.arm(reactor.ConnWriteInterest)
		return
	}
	if c.closeAfter || !c.keepAlive {
		c.teardown()
		return
	}
	if c.arm(reactor.ConnReadInterest) {
		c.reset()
	}
}

// writeSome writes pending output until done or the socket would block.
func (c *Conn) writeSome() (bool, error) {
	for c.sent < len(c.out) {
		n, err := unix.Write(c.ch.FD(), c.out[c.sent:])
		if n > 0 {
			c.sent += n
		}
		switch err {
		case nil:
		case unix.EINTR:
		case unix.EAGAIN:
			return true, nil
		default:
			return false, err
		}
	}
	return false, nil
}

// arm sets the full interest set of the one I/O direction wanted. It returns
// false when the connection had to be torn down.
func (c *Conn) arm(ev reactor.Events) bool {
	c.ch.SetInterest(ev)
	if err := c.owner.Modify(c.ch); err != nil {
		c.log.Error("interest change failed", zap.Stringer("interest", ev), zap.Error(err))
		c.teardown()
		return false
	}
	return true
}

func (c *Conn) refresh(timeout time.Duration) {
	if c.timer != 0 {
		c.owner.RefreshTimer(c.timer, timeout)
	}
}

// reset prepares a keep-alive connection for the next request. Input left
// after the current request is dropped.
func (c *Conn) reset() {
	c.refresh(c.opts.KeepAliveTimeout)
	if cap(c.in) > maxRetainedInput {
		c.in = nil
	} else {
		c.in = c.in[:0]
	}
	c.off = 0
	c.out = c.out[:0]
	c.sent = 0
	c.req.reset()
	c.state = StateStart
	c.keepAlive = false
	c.closeAfter = false
}

// teardown hands the channel back to the reactor, which closes the socket
// and cancels the timer. Later calls do nothing.
func (c *Conn) teardown() {
	if c.closed {
		return
	}
	c.closed = true
	if err := c.owner.Deregister(c.ch); err != nil {
		c.log.Warn("deregister failed", zap.Error(err))
	}
}
