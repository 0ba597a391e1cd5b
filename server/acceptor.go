// File: server/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listening socket setup and the acceptor channel: accept until the backlog
// is empty, enforce the global ceiling and hand every connection to the
// least-loaded worker reactor.

package server

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/reactor"
)

// Counter names published through api.Control.
const (
	MetricAccepted = "connections.accepted"
	MetricRejected = "connections.rejected"
	MetricClosed   = "connections.closed"
)

// listenTCP4 opens a non-blocking IPv4 listening socket with SO_REUSEADDR and
// returns it with the bound address.
func listenTCP4(addr string, backlog int) (int, string, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return -1, "", errors.Wrapf(api.ErrInvalidArgument, "listen address %q: %v", addr, err)
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, "", errors.Wrap(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, "", errors.Wrap(err, "setsockopt SO_REUSEADDR")
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, "", errors.Wrapf(err, "bind %s", addr)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, "", errors.Wrap(err, "listen")
	}

	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, "", errors.Wrap(err, "getsockname")
	}
	in4, ok := bound.(*unix.SockaddrInet4)
	if !ok {
		unix.Close(fd)
		return -1, "", errors.Wrap(api.ErrNotSupported, "non-IPv4 listener")
	}
	host := net.IP(in4.Addr[:]).String()
	return fd, net.JoinHostPort(host, strconv.Itoa(in4.Port)), nil
}

// acceptor owns the listening channel on the main reactor.
type acceptor struct {
	ch       *reactor.Channel
	workers  []*reactor.EventLoop
	opts     *protocol.Options
	active   *atomic.Int64 // live connections across all workers
	maxConns *atomic.Int64
	ctrl     api.Control
	log      *zap.Logger
}

func newAcceptor(fd int, workers []*reactor.EventLoop, opts *protocol.Options,
	active, maxConns *atomic.Int64, ctrl api.Control, log *zap.Logger) *acceptor {
	a := &acceptor{
		ch:       reactor.NewChannel(fd),
		workers:  workers,
		opts:     opts,
		active:   active,
		maxConns: maxConns,
		ctrl:     ctrl,
		log:      log,
	}
	a.ch.SetInterest(reactor.EventReadable | reactor.EventError)
	a.ch.SetReadHandler(a.handleAccept)
	a.ch.SetErrorHandler(func() {
		a.log.Error("listening socket error", zap.Int("fd", fd))
	})
	return a
}

// handleAccept drains the accept queue. The listener is edge-triggered, so
// it must run until the kernel reports EAGAIN.
func (a *acceptor) handleAccept() {
	for {
		nfd, _, err := unix.Accept4(a.ch.FD(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			default:
				a.log.Error("accept failed", zap.Error(err))
				return
			}
		}
		a.dispatch(nfd)
	}
}

func (a *acceptor) dispatch(fd int) {
	if a.active.Load() >= a.maxConns.Load() {
		unix.Close(fd)
		a.ctrl.IncCounter(MetricRejected, 1)
		a.log.Warn("connection rejected, ceiling reached",
			zap.Int("fd", fd), zap.Int64("max_conns", a.maxConns.Load()))
		return
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	w := a.leastLoaded()
	ch := reactor.NewConnChannel(fd)
	conn := protocol.NewConn(w, ch, a.opts)
	a.active.Inc()
	if err := w.Submit(ch, conn, a.opts.HeaderTimeout); err != nil {
		a.active.Dec()
		ch.Close()
		a.log.Error("handoff failed", zap.Int("fd", fd), zap.Int("reactor", w.ID()), zap.Error(err))
		return
	}
	a.ctrl.IncCounter(MetricAccepted, 1)
	a.log.Debug("connection accepted", zap.Int("fd", fd), zap.Int("reactor", w.ID()))
}

// leastLoaded scans every worker and returns the first with the fewest
// connections.
func (a *acceptor) leastLoaded() *reactor.EventLoop {
	best := a.workers[0]
	low := best.ConnCount()
	for _, w := range a.workers[1:] {
		if n := w.ConnCount(); n < low {
			best, low = w, n
		}
	}
	return best
}
