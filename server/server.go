// File: server/server.go
// Package server wires the acceptor reactor, the worker reactors, the tick
// fan-out and runtime control into one HTTP server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/hioload-httpd/adapters"
	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/pool"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/reactor"
)

var ErrAlreadyRunning = errors.New("server already running")

// Server is one acceptor reactor plus a fixed pool of worker reactors.
type Server struct {
	cfg   *Config
	log   *zap.Logger
	ctrl  *adapters.ControlAdapter
	files protocol.FileResolver
	opts  *protocol.Options

	main    *reactor.EventLoop
	workers []*reactor.EventLoop
	acc     *acceptor
	addr    string

	active   *atomic.Int64
	maxConns *atomic.Int64
	started  *atomic.Bool

	mu        sync.Mutex
	stopTick  chan struct{}
	mainDone  chan struct{}
	workersWG sync.WaitGroup
	quitSent  bool
	stopped   bool
}

// NewServer validates cfg and creates every reactor. No socket is opened
// until Start.
func NewServer(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	s := &Server{
		cfg:      &c,
		log:      zap.NewNop(),
		ctrl:     adapters.NewControlAdapter(),
		active:   atomic.NewInt64(0),
		maxConns: atomic.NewInt64(0),
		started:  atomic.NewBool(false),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.maxConns.Store(int64(s.cfg.MaxConns))
	if s.files == nil {
		s.files = protocol.NewDirResolver(s.cfg.DocRoot)
	}
	s.opts = protocol.Normalize(protocol.Options{
		ServerName:       s.cfg.ServerName,
		HeaderTimeout:    s.cfg.HeaderTimeout,
		BodyTimeout:      s.cfg.BodyTimeout,
		KeepAliveTimeout: s.cfg.KeepAliveTimeout,
		MaxRequestBytes:  s.cfg.MaxRequestBytes,
		Files:            s.files,
		Mime:             protocol.NewMimeTable(),
		Chunks:           pool.NewBytePool(pool.DefaultChunkSize),
		Logger:           s.log,
	})

	main, err := reactor.NewEventLoop(0, s.loopConfig(0))
	if err != nil {
		return nil, err
	}
	s.main = main
	for i := 1; i <= s.cfg.Workers; i++ {
		w, err := reactor.NewEventLoop(i, s.loopConfig(i))
		if err != nil {
			s.closeLoops()
			return nil, err
		}
		s.workers = append(s.workers, w)
	}

	s.initControl()
	return s, nil
}

func (s *Server) loopConfig(id int) reactor.LoopConfig {
	lc := reactor.LoopConfig{
		TableSize:    s.cfg.TableSize,
		MaxEvents:    s.cfg.MaxEvents,
		PollTimeout:  s.cfg.PollTimeout,
		SlotNum:      s.cfg.SlotNum,
		SlotInterval: s.cfg.SlotInterval,
		CPU:          -1,
		Logger:       s.log,
		OnRelease:    s.release,
	}
	if s.cfg.CPUAffinity {
		lc.CPU = id % runtime.NumCPU()
	}
	return lc
}

// release runs on a worker goroutine once per connection leaving it.
func (s *Server) release(reactor.Session) {
	s.active.Dec()
	s.ctrl.IncCounter(MetricClosed, 1)
}

// initControl publishes the effective configuration, makes max_conns
// hot-reloadable and registers the load probes.
func (s *Server) initControl() {
	store := s.ctrl.Config()
	store.Publish(s.cfg.snapshot())
	store.SetValidator(func(update map[string]any) error {
		v, ok := update["max_conns"]
		if !ok {
			return nil
		}
		if n, ok := toInt64(v); !ok || n <= 0 {
			return api.NewError(api.ErrCodeInvalidArgument, "max_conns must be a positive integer").
				WithContext("field", "max_conns").WithContext("value", v)
		}
		return nil
	})
	store.OnReload(func(snap map[string]any) {
		if n, ok := toInt64(snap["max_conns"]); ok && n != s.maxConns.Load() {
			s.maxConns.Store(n)
			s.log.Info("connection ceiling updated", zap.Int64("max_conns", n))
		}
	})

	s.ctrl.RegisterDebugProbe("connections.active", func() any { return s.active.Load() })
	for _, w := range s.workers {
		w := w
		s.ctrl.RegisterDebugProbe("reactor."+strconv.Itoa(w.ID())+".connections", func() any {
			return w.ConnCount()
		})
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// Start opens the listening socket and runs every reactor on its own
// goroutine. It returns once the server is accepting.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	fd, addr, err := listenTCP4(s.cfg.ListenAddr, s.cfg.Backlog)
	if err != nil {
		s.started.Store(false)
		return err
	}
	s.addr = addr
	s.acc = newAcceptor(fd, s.workers, s.opts, s.active, s.maxConns, s.ctrl, s.log)
	if err := s.main.Register(s.acc.ch, nil, 0); err != nil {
		s.acc.ch.Close()
		s.started.Store(false)
		return err
	}

	for _, w := range s.workers {
		s.workersWG.Add(1)
		go func(w *reactor.EventLoop) {
			defer s.workersWG.Done()
			if err := w.Run(); err != nil {
				s.log.Error("worker reactor stopped", zap.Int("reactor", w.ID()), zap.Error(err))
			}
		}(w)
	}
	s.mainDone = make(chan struct{})
	go func() {
		defer close(s.mainDone)
		if err := s.main.Run(); err != nil {
			s.log.Error("acceptor reactor stopped", zap.Error(err))
		}
	}()

	s.stopTick = make(chan struct{})
	go s.tickLoop(s.stopTick)

	s.log.Info("server started",
		zap.String("addr", addr), zap.Int("workers", len(s.workers)), zap.Int64("max_conns", s.maxConns.Load()))
	return nil
}

// tickLoop drives every worker's timing wheel at the configured interval.
func (s *Server) tickLoop(stop <-chan struct{}) {
	t := time.NewTicker(s.cfg.SlotInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			for _, w := range s.workers {
				if err := w.Tick(); err != nil {
					s.log.Warn("tick failed", zap.Int("reactor", w.ID()), zap.Error(err))
				}
			}
		}
	}
}

// Shutdown stops accepting, then asks every worker to close its
// connections, and releases all reactors. It returns ctx.Err() if the
// reactors do not stop in time; their resources are then left open.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	if !s.started.Load() {
		s.stopped = true
		s.closeLoops()
		return nil
	}

	if !s.quitSent {
		s.quitSent = true
		close(s.stopTick)
		s.main.Quit()
	}
	select {
	case <-s.mainDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, w := range s.workers {
		w.Quit()
	}
	done := make(chan struct{})
	go func() {
		s.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.stopped = true
	s.closeLoops()
	s.log.Info("server stopped", zap.Int64("active", s.active.Load()))
	return nil
}

func (s *Server) closeLoops() {
	for _, l := range append([]*reactor.EventLoop{s.main}, s.workers...) {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil {
			s.log.Warn("reactor close failed", zap.Int("reactor", l.ID()), zap.Error(err))
		}
	}
}

// Addr returns the bound listen address once started.
func (s *Server) Addr() string { return s.addr }

// ConnCount returns live connections across every worker.
func (s *Server) ConnCount() int { return int(s.active.Load()) }

// Control exposes configuration, counters and probes.
func (s *Server) Control() api.Control { return s.ctrl }

// Loops returns the worker reactors.
func (s *Server) Loops() []*reactor.EventLoop { return s.workers }
