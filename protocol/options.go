// File: protocol/options.go
// Author: momentics <momentics@gmail.com>

package protocol

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-httpd/pool"
)

// Options is shared, read-only configuration for every Conn of a server.
type Options struct {
	ServerName       string
	HeaderTimeout    time.Duration // request line and headers
	BodyTimeout      time.Duration // gap between body fragments
	KeepAliveTimeout time.Duration // idle time between requests
	MaxRequestBytes  int

	Files  FileResolver // nil serves only built-in targets
	Mime   *MimeTable
	Chunks *pool.BytePool
	Logger *zap.Logger
	Now    func() time.Time
}

// DefaultOptions returns the defaults used by the server.
func DefaultOptions() Options {
	return Options{
		ServerName:       "hioload-httpd",
		HeaderTimeout:    5 * time.Second,
		BodyTimeout:      5 * time.Second,
		KeepAliveTimeout: 60 * time.Second,
		MaxRequestBytes:  1 << 20,
	}
}

// withDefaults fills every unset field.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ServerName == "" {
		o.ServerName = def.ServerName
	}
	if o.HeaderTimeout <= 0 {
		o.HeaderTimeout = def.HeaderTimeout
	}
	if o.BodyTimeout <= 0 {
		o.BodyTimeout = def.BodyTimeout
	}
	if o.KeepAliveTimeout <= 0 {
		o.KeepAliveTimeout = def.KeepAliveTimeout
	}
	if o.MaxRequestBytes <= 0 {
		o.MaxRequestBytes = def.MaxRequestBytes
	}
	if o.Mime == nil {
		o.Mime = NewMimeTable()
	}
	if o.Chunks == nil {
		o.Chunks = pool.NewBytePool(pool.DefaultChunkSize)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Normalize returns a copy of o with defaults applied, ready to be shared.
func Normalize(o Options) *Options {
	n := o.withDefaults()
	return &n
}
