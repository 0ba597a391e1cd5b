//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7) poller plus the eventfd/pipe helpers used for loop wakeups
// and timer ticks.

package reactor

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// epollPoller is an edge-triggered epoll instance.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates the platform readiness multiplexer.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &epollPoller{epfd: epfd}, nil
}

func toEpoll(ev Events) uint32 {
	out := uint32(unix.EPOLLET)
	if ev&EventReadable != 0 {
		out |= unix.EPOLLIN
	}
	if ev&EventWritable != 0 {
		out |= unix.EPOLLOUT
	}
	if ev&EventError != 0 {
		out |= unix.EPOLLERR
	}
	if ev&EventHangup != 0 {
		out |= unix.EPOLLHUP
	}
	if ev&EventPeerClosed != 0 {
		out |= unix.EPOLLRDHUP
	}
	return out
}

func fromEpoll(raw uint32) Events {
	var ev Events
	if raw&unix.EPOLLIN != 0 {
		ev |= EventReadable
	}
	if raw&unix.EPOLLOUT != 0 {
		ev |= EventWritable
	}
	if raw&unix.EPOLLERR != 0 {
		ev |= EventError
	}
	if raw&unix.EPOLLHUP != 0 {
		ev |= EventHangup
	}
	if raw&unix.EPOLLRDHUP != 0 {
		ev |= EventPeerClosed
	}
	return ev
}

// Add registers fd with the full interest set in edge-triggered mode.
func (p *epollPoller) Add(fd int, ev Events) error {
	e := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &e); err != nil {
		return errors.Wrap(err, "epoll_ctl add")
	}
	return nil
}

// Modify rewrites the complete interest set of fd.
func (p *epollPoller) Modify(fd int, ev Events) error {
	e := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &e); err != nil {
		return errors.Wrap(err, "epoll_ctl mod")
	}
	return nil
}

// Remove drops fd from the interest list.
func (p *epollPoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return errors.Wrap(err, "epoll_ctl del")
	}
	return nil
}

// Wait blocks in epoll_wait and converts the ready list.
func (p *epollPoller) Wait(ready []Ready, timeout time.Duration) (int, error) {
	if len(ready) == 0 {
		return 0, nil
	}
	if cap(p.events) < len(ready) {
		p.events = make([]unix.EpollEvent, len(ready))
	}
	raw := p.events[:len(ready)]
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, raw, msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, errors.Wrap(err, "epoll_wait")
	}
	for i := 0; i < n; i++ {
		ready[i] = Ready{FD: int(raw[i].Fd), Events: fromEpoll(raw[i].Events)}
	}
	return n, nil
}

// Close releases the epoll descriptor.
func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

// newWakeFD creates the non-blocking eventfd that interrupts epoll_wait when
// work is posted to a loop.
func newWakeFD() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, errors.Wrap(err, "eventfd")
	}
	return fd, nil
}

func signalWakeFD(fd int) error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, err := unix.Write(fd, b[:])
	if err == unix.EAGAIN {
		// Counter saturated: a wakeup is already pending.
		return nil
	}
	return err
}

func drainWakeFD(fd int) {
	var b [8]byte
	for {
		if _, err := unix.Read(fd, b[:]); err != unix.EINTR {
			return
		}
	}
}

// newTickPipe returns the read and write ends of a non-blocking pipe.
func newTickPipe() (int, int, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, errors.Wrap(err, "pipe2")
	}
	return p[0], p[1], nil
}
