//go:build linux
// +build linux

// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-httpd components.

package benchmarks

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/momentics/hioload-httpd/pool"
	"github.com/momentics/hioload-httpd/server"
)

// BenchmarkBytePoolChunk measures the per-read scratch chunk round trip.
func BenchmarkBytePoolChunk(b *testing.B) {
	chunks := pool.NewBytePool(pool.DefaultChunkSize)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := chunks.Get()
			(*buf)[0] = 1
			chunks.Put(buf)
		}
	})
}

// BenchmarkTimeWheelRefresh models a keep-alive connection re-arming its
// timer on every request.
func BenchmarkTimeWheelRefresh(b *testing.B) {
	w := concurrency.NewTimeWheel(60, time.Second)
	ids := make([]concurrency.TimerID, 1024)
	for i := range ids {
		id, err := w.Add(5*time.Second, func() {})
		if err != nil {
			b.Fatal(err)
		}
		ids[i] = id
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Refresh(ids[i%len(ids)], time.Duration(i%60)*time.Second)
		if i%len(ids) == 0 {
			w.Tick()
		}
	}
}

// BenchmarkMailboxHandoff measures cross-goroutine task posting drained by a
// single owner.
func BenchmarkMailboxHandoff(b *testing.B) {
	m := concurrency.NewMailbox()
	done := make(chan struct{})
	stop := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				m.Drain()
				return
			default:
				if m.Drain() == 0 {
					time.Sleep(time.Microsecond)
				}
			}
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if err := m.Post(func() {}); err != nil {
				b.Fatal(err)
			}
		}
	})
	b.StopTimer()
	close(stop)
	<-done
}

// BenchmarkServerKeepAliveHello drives GET /hello over one keep-alive
// connection through the acceptor and a worker reactor.
func BenchmarkServerKeepAliveHello(b *testing.B) {
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Workers = 1
	cfg.TableSize = 4096
	cfg.DocRoot = b.TempDir()
	srv, err := server.NewServer(cfg)
	if err != nil {
		b.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		b.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		b.Fatal(err)
	}
	defer conn.Close()
	br := bufio.NewReader(conn)
	req := []byte("GET /hello HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := conn.Write(req); err != nil {
			b.Fatal(err)
		}
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			b.Fatal(err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
