// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-httpd/protocol"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the logger shared by every reactor and connection.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWorkers overrides the number of worker reactors.
func WithWorkers(n int) ServerOption {
	return func(s *Server) {
		s.cfg.Workers = n
	}
}

// WithMaxConns overrides the global connection ceiling.
func WithMaxConns(n int) ServerOption {
	return func(s *Server) {
		s.cfg.MaxConns = n
	}
}

// WithFileResolver replaces the DocRoot resolver for GET and HEAD.
func WithFileResolver(r protocol.FileResolver) ServerOption {
	return func(s *Server) {
		s.files = r
	}
}

// WithCPUAffinity pins reactor threads to CPUs.
func WithCPUAffinity(on bool) ServerOption {
	return func(s *Server) {
		s.cfg.CPUAffinity = on
	}
}
