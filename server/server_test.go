//go:build linux
// +build linux

// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/server"
)

func testConfig(t *testing.T) *server.Config {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>index</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Workers = 2
	cfg.TableSize = 4096
	cfg.MaxEvents = 64
	cfg.PollTimeout = 100 * time.Millisecond
	cfg.SlotNum = 16
	cfg.SlotInterval = 20 * time.Millisecond
	cfg.DocRoot = root
	return cfg
}

func startServer(t *testing.T, cfg *server.Config) *server.Server {
	t.Helper()
	s, err := server.NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerKeepAliveRoundTrips(t *testing.T) {
	s := startServer(t, testConfig(t))

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	br := bufio.NewReader(conn)

	io.WriteString(conn, "GET /hello HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || string(body) != "Hello World" {
		t.Fatalf("Unexpected response %d %q", resp.StatusCode, body)
	}
	if resp.Header.Get("Keep-Alive") == "" {
		t.Error("Expected Keep-Alive header")
	}

	io.WriteString(conn, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
	resp, err = http.ReadResponse(br, nil)
	if err != nil {
		t.Fatalf("read second response: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	if string(body) != "<h1>index</h1>" || resp.Header.Get("Content-Type") != "text/html" {
		t.Errorf("Unexpected index response %q %q", body, resp.Header.Get("Content-Type"))
	}
	if _, err := br.ReadByte(); err != io.EOF {
		t.Errorf("Expected server to close, got %v", err)
	}

	waitFor(t, "connection release", func() bool { return s.ConnCount() == 0 })
	waitFor(t, "closed counter", func() bool {
		return s.Control().Stats()[server.MetricClosed] == int64(1)
	})
	if got := s.Control().Stats()[server.MetricAccepted]; got != int64(1) {
		t.Errorf("Expected 1 accepted connection, got %v", got)
	}
}

func TestServerPostEcho(t *testing.T) {
	s := startServer(t, testConfig(t))
	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	io.WriteString(conn, "POST /echo HTTP/1.1\r\nContent-Length: 7\r\n\r\nabc")
	time.Sleep(20 * time.Millisecond)
	io.WriteString(conn, "defg")
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ABCDEFG" {
		t.Errorf("Expected ABCDEFG, got %q", body)
	}
}

func TestServerIdleTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.HeaderTimeout = 60 * time.Millisecond
	s := startServer(t, cfg)

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.StatusCode != 408 {
		t.Errorf("Expected 408, got %d", resp.StatusCode)
	}
	waitFor(t, "timed out connection release", func() bool { return s.ConnCount() == 0 })
}

// TestServerConnectionCeiling fills the ceiling, checks the next client is
// dropped, then raises the ceiling at runtime.
func TestServerConnectionCeiling(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConns = 1
	s := startServer(t, cfg)

	first, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	waitFor(t, "first connection", func() bool { return s.ConnCount() == 1 })

	second, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := second.Read(make([]byte, 1)); err == nil {
		t.Fatal("Expected rejected connection to be closed")
	}
	if s.ConnCount() != 1 {
		t.Errorf("Expected counter unaffected, got %d", s.ConnCount())
	}
	waitFor(t, "rejection counter", func() bool {
		return s.Control().Stats()[server.MetricRejected] == int64(1)
	})

	if err := s.Control().SetConfig(map[string]any{"max_conns": 0}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Expected invalid max_conns rejected, got %v", err)
	}
	if err := s.Control().SetConfig(map[string]any{"max_conns": 2}); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	third, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer third.Close()
	waitFor(t, "third connection", func() bool { return s.ConnCount() == 2 })

	io.WriteString(third, "GET /hello HTTP/1.0\r\n\r\n")
	third.SetReadDeadline(time.Now().Add(3 * time.Second))
	out, _ := io.ReadAll(third)
	if !strings.HasSuffix(string(out), "Hello World") {
		t.Errorf("Expected served response, got %q", out)
	}
}

// TestServerLeastLoaded checks connections spread over workers.
func TestServerLeastLoaded(t *testing.T) {
	s := startServer(t, testConfig(t))
	var conns []net.Conn
	for i := 0; i < 4; i++ {
		c, err := net.Dial("tcp", s.Addr())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		conns = append(conns, c)
		waitFor(t, "registration", func() bool { return s.ConnCount() == i+1 })
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for _, w := range s.Loops() {
		w := w
		waitFor(t, "reactor "+strconv.Itoa(w.ID())+" load", func() bool { return w.ConnCount() == 2 })
	}
	probe := s.Control().Stats()["debug.reactor.1.connections"]
	if probe != 2 {
		t.Errorf("Expected probe value 2, got %v", probe)
	}
}

func TestServerShutdownClosesConnections(t *testing.T) {
	s, err := server.NewServer(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); !errors.Is(err, server.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	waitFor(t, "registration", func() bool { return s.ConnCount() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if s.ConnCount() != 0 {
		t.Errorf("Expected no connections after shutdown, got %d", s.ConnCount())
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("Expected connection closed by shutdown")
	}
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Second Shutdown() error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Workers = 0
	_, err := server.NewServer(cfg)
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("Expected ErrInvalidArgument, got %v", err)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Context["field"] != "workers" {
		t.Errorf("Expected field context, got %#v", err)
	}
	if err := server.DefaultConfig().Validate(); err != nil {
		t.Errorf("Expected defaults valid, got %v", err)
	}
}
