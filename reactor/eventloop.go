// File: reactor/eventloop.go
// Author: momentics <momentics@gmail.com>
//
// EventLoop: one readiness multiplexer, one fd-indexed connection table and
// one timing wheel, all owned by the goroutine running Run.

package reactor

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/internal/concurrency"
)

// Session is the per-connection state stored next to a connection Channel.
type Session interface {
	// LinkTimer hands the session the handle of its idle timer.
	LinkTimer(id concurrency.TimerID)
	// Expire is the idle timer's callback.
	Expire()
}

// LoopConfig configures an EventLoop.
type LoopConfig struct {
	TableSize    int           // capacity of the fd-indexed connection table
	MaxEvents    int           // readiness notifications fetched per wait
	PollTimeout  time.Duration // upper bound of a single wait
	SlotNum      int           // timing wheel slots
	SlotInterval time.Duration // timing wheel tick interval
	CPU          int           // CPU to pin the loop thread to, -1 for none
	Logger       *zap.Logger
	// OnRelease is called once for every session leaving the loop, either
	// through Deregister or because a handed-off registration failed.
	OnRelease func(Session)
}

// DefaultLoopConfig returns the defaults used by the server.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TableSize:    65536,
		MaxEvents:    4096,
		PollTimeout:  10 * time.Second,
		SlotNum:      60,
		SlotInterval: time.Second,
		CPU:          -1,
	}
}

type entry struct {
	ch    *Channel
	sess  Session
	timer concurrency.TimerID
}

// EventLoop is a single-goroutine reactor.
type EventLoop struct {
	id  int
	cfg LoopConfig
	log *zap.Logger

	poller  Poller
	table   []*entry
	wheel   *concurrency.TimeWheel
	mailbox *concurrency.Mailbox
	ready   []Ready

	wakeCh *Channel
	tickCh *Channel
	tickW  int

	conns    *atomic.Int64 // registered sessions
	pending  *atomic.Int64 // handoffs posted but not yet registered
	running  *atomic.Bool
	closed   *atomic.Bool
	quitting *atomic.Bool
	stopping bool // owner goroutine only
}

// NewEventLoop creates the poller, the wakeup eventfd and the tick pipe.
// A poller that cannot be created is the only fatal error for a loop.
func NewEventLoop(id int, cfg LoopConfig) (*EventLoop, error) {
	def := DefaultLoopConfig()
	if cfg.TableSize <= 0 {
		cfg.TableSize = def.TableSize
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.SlotNum <= 0 {
		cfg.SlotNum = def.SlotNum
	}
	if cfg.SlotInterval <= 0 {
		cfg.SlotInterval = def.SlotInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	poller, err := NewPoller()
	if err != nil {
		return nil, errors.Wrapf(err, "reactor %d", id)
	}
	l := &EventLoop{
		id:       id,
		cfg:      cfg,
		log:      cfg.Logger.With(zap.Int("reactor", id)),
		poller:   poller,
		table:    make([]*entry, cfg.TableSize),
		wheel:    concurrency.NewTimeWheel(cfg.SlotNum, cfg.SlotInterval),
		mailbox:  concurrency.NewMailbox(),
		ready:    make([]Ready, cfg.MaxEvents),
		tickW:    -1,
		conns:    atomic.NewInt64(0),
		pending:  atomic.NewInt64(0),
		running:  atomic.NewBool(false),
		closed:   atomic.NewBool(false),
		quitting: atomic.NewBool(false),
	}

	wakeFD, err := newWakeFD()
	if err != nil {
		poller.Close()
		return nil, err
	}
	l.wakeCh = NewChannel(wakeFD)
	l.wakeCh.SetInterest(EventReadable)
	l.wakeCh.SetReadHandler(func() { drainWakeFD(wakeFD) })

	tickR, tickW, err := newTickPipe()
	if err != nil {
		l.wakeCh.Close()
		poller.Close()
		return nil, err
	}
	l.tickW = tickW
	l.tickCh = NewChannel(tickR)
	l.tickCh.SetInterest(EventReadable)
	l.tickCh.SetReadHandler(l.onTick)

	for _, ch := range []*Channel{l.wakeCh, l.tickCh} {
		if err := l.Register(ch, nil, 0); err != nil {
			l.wakeCh.Close()
			l.tickCh.Close()
			unix.Close(tickW)
			poller.Close()
			return nil, err
		}
	}
	return l, nil
}

// ID returns the loop index assigned at construction.
func (l *EventLoop) ID() int { return l.id }

// ConnCount returns the number of connections owned by the loop, including
// handoffs that are queued but not yet registered. Safe from any goroutine.
func (l *EventLoop) ConnCount() int {
	return int(l.conns.Load() + l.pending.Load())
}

// Timers returns the number of pending timers. Owner goroutine only.
func (l *EventLoop) Timers() int { return l.wheel.Len() }

// TimerPending reports whether id is still scheduled. Owner goroutine only.
func (l *EventLoop) TimerPending(id concurrency.TimerID) bool { return l.wheel.Pending(id) }

func (l *EventLoop) lookup(ch *Channel) *entry {
	if ch == nil {
		return nil
	}
	fd := ch.FD()
	if fd < 0 || fd >= len(l.table) {
		return nil
	}
	if e := l.table[fd]; e != nil && e.ch == ch {
		return e
	}
	return nil
}

// Register adds ch to the poller in edge-triggered mode and stores it in the
// table. When sess is non-nil an idle timer of the given timeout is created
// and linked to it. Owner goroutine only, or before Run starts.
func (l *EventLoop) Register(ch *Channel, sess Session, timeout time.Duration) error {
	if ch == nil {
		return ErrNilChannel
	}
	if ch.IsConn() && sess == nil {
		return ErrNoSession
	}
	if l.closed.Load() {
		return ErrLoopClosed
	}
	fd := ch.FD()
	if fd < 0 || fd >= len(l.table) {
		return errors.Wrapf(ErrFDOutOfRange, "fd %d", fd)
	}
	if l.table[fd] != nil {
		return errors.Wrapf(ErrFDInUse, "fd %d", fd)
	}
	if ch.log == nil {
		ch.SetLogger(l.log)
	}
	if err := l.poller.Add(fd, ch.Interest()); err != nil {
		l.log.Error("register failed", zap.Int("fd", fd), zap.Error(err))
		return errors.Wrapf(err, "register fd %d", fd)
	}
	ch.markApplied()

	e := &entry{ch: ch}
	if sess != nil {
		id, err := l.wheel.Add(timeout, sess.Expire)
		if err != nil {
			l.poller.Remove(fd)
			return errors.Wrapf(err, "register fd %d", fd)
		}
		e.sess = sess
		e.timer = id
		sess.LinkTimer(id)
		l.conns.Inc()
	}
	l.table[fd] = e
	l.log.Debug("channel registered", zap.Int("fd", fd), zap.Stringer("interest", ch.Interest()))
	return nil
}

// Modify hands the channel's complete interest set to the poller. Nothing
// is sent when the interest did not change since the last call.
func (l *EventLoop) Modify(ch *Channel) error {
	if l.lookup(ch) == nil {
		return ErrNotRegistered
	}
	if !ch.interestChanged() {
		return nil
	}
	if err := l.poller.Modify(ch.FD(), ch.Interest()); err != nil {
		l.log.Error("modify failed", zap.Int("fd", ch.FD()), zap.Error(err))
		return errors.Wrapf(err, "modify fd %d", ch.FD())
	}
	ch.markApplied()
	return nil
}

// Deregister removes ch from the poller, cancels its timer, frees its table
// slot and closes its descriptor. A poller failure is reported but the
// channel is released anyway, so teardown happens exactly once.
func (l *EventLoop) Deregister(ch *Channel) error {
	e := l.lookup(ch)
	if e == nil {
		return ErrNotRegistered
	}
	fd := ch.FD()
	var err error
	if perr := l.poller.Remove(fd); perr != nil {
		l.log.Error("deregister failed", zap.Int("fd", fd), zap.Error(perr))
		err = errors.Wrapf(perr, "deregister fd %d", fd)
	}
	l.table[fd] = nil
	if e.sess != nil {
		l.wheel.Cancel(e.timer)
		l.conns.Dec()
	}
	if cerr := ch.Close(); cerr != nil && err == nil {
		err = errors.Wrapf(cerr, "close fd %d", fd)
	}
	if e.sess != nil && l.cfg.OnRelease != nil {
		l.cfg.OnRelease(e.sess)
	}
	l.log.Debug("channel deregistered", zap.Int("fd", fd))
	return err
}

// RefreshTimer pushes a session timer's deadline to timeout from now.
func (l *EventLoop) RefreshTimer(id concurrency.TimerID, timeout time.Duration) bool {
	return l.wheel.Refresh(id, timeout)
}

// Submit hands a freshly accepted connection to this loop from another
// goroutine. The loop registers it on its own goroutine; if that fails the
// channel is closed and the session goes to OnRelease. When Submit itself
// returns an error the caller still owns ch.
func (l *EventLoop) Submit(ch *Channel, sess Session, timeout time.Duration) error {
	if ch == nil {
		return ErrNilChannel
	}
	if l.closed.Load() {
		return ErrLoopClosed
	}
	l.pending.Inc()
	err := l.mailbox.Post(func() {
		defer l.pending.Dec()
		if err := l.Register(ch, sess, timeout); err != nil {
			l.log.Error("handoff registration failed", zap.Int("fd", ch.FD()), zap.Error(err))
			ch.Close()
			if sess != nil && l.cfg.OnRelease != nil {
				l.cfg.OnRelease(sess)
			}
		}
	})
	if err != nil {
		l.pending.Dec()
		return errors.Wrap(ErrLoopClosed, err.Error())
	}
	l.wakeup()
	return nil
}

// Post runs task on the loop goroutine. Safe from any goroutine.
func (l *EventLoop) Post(task func()) error {
	if err := l.mailbox.Post(task); err != nil {
		return errors.Wrap(ErrLoopClosed, err.Error())
	}
	l.wakeup()
	return nil
}

// wakeup interrupts a blocked wait. A queued task is never lost when the
// signal fails; it runs after the current wait times out.
func (l *EventLoop) wakeup() {
	if err := signalWakeFD(l.wakeCh.FD()); err != nil {
		l.log.Warn("wakeup failed", zap.Error(err))
	}
}

// Tick advances the timing wheel by one slot on the loop goroutine by
// writing a byte into the tick pipe. Safe from any goroutine; a tick is
// dropped when the pipe is full.
func (l *EventLoop) Tick() error {
	_, err := unix.Write(l.tickW, []byte{1})
	if err == unix.EAGAIN {
		l.log.Debug("tick dropped, pipe full")
		return nil
	}
	return err
}

func (l *EventLoop) onTick() {
	var buf [64]byte
	for {
		n, err := unix.Read(l.tickCh.FD(), buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
		for i := 0; i < n; i++ {
			l.wheel.Tick()
		}
	}
}

// Quit asks the loop to deregister every channel it owns and stop. Safe from
// any goroutine; Run returns after the request is processed.
func (l *EventLoop) Quit() {
	if !l.quitting.CompareAndSwap(false, true) {
		return
	}
	if err := l.Post(l.shutdown); err != nil {
		l.log.Warn("quit not delivered", zap.Error(err))
	}
}

func (l *EventLoop) shutdown() {
	n := 0
	for _, e := range l.table {
		if e == nil || e.ch == l.wakeCh || e.ch == l.tickCh {
			continue
		}
		l.Deregister(e.ch)
		n++
	}
	l.stopping = true
	l.log.Info("reactor quitting", zap.Int("released", n))
}

// Poll performs one wait, dispatches every ready channel in the order the
// poller returned them, then runs the tasks posted to the loop. Owner
// goroutine only.
func (l *EventLoop) Poll(timeout time.Duration) (int, error) {
	n, err := l.poller.Wait(l.ready, timeout)
	if err != nil {
		return 0, err
	}
	for i := 0; i < n; i++ {
		r := l.ready[i]
		if r.FD < 0 || r.FD >= len(l.table) || l.table[r.FD] == nil {
			l.log.Warn("readiness for unknown fd", zap.Int("fd", r.FD))
			continue
		}
		ch := l.table[r.FD].ch
		ch.SetReady(r.Events)
		ch.Dispatch()
	}
	l.mailbox.Drain()
	return n, nil
}

// Run pins the calling goroutine to its OS thread and polls until Quit has
// been processed. A wait failure other than an interrupted call ends Run.
func (l *EventLoop) Run() error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	if err := concurrency.PinCurrentThread(l.cfg.CPU); err != nil {
		l.log.Warn("thread pinning failed", zap.Error(err))
	}
	defer concurrency.UnpinCurrentThread()

	l.log.Info("reactor started")
	for !l.stopping {
		if _, err := l.Poll(l.cfg.PollTimeout); err != nil {
			l.log.Error("wait failed", zap.Error(err))
			return err
		}
	}
	return nil
}

// Close releases everything still owned by the loop, including handoffs that
// never ran, and the loop's own descriptors. It must not be called while Run
// is active.
func (l *EventLoop) Close() error {
	if l.running.Load() {
		return ErrLoopRunning
	}
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Registrations fail on a closed loop and release their sessions.
	for _, task := range l.mailbox.Close() {
		task()
	}
	for _, e := range l.table {
		if e != nil {
			l.Deregister(e.ch)
		}
	}
	unix.Close(l.tickW)
	return l.poller.Close()
}
