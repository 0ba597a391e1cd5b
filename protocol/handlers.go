// File: protocol/handlers.go
// Author: momentics <momentics@gmail.com>
//
// Method handlers. A handler buffers a complete response and returns true,
// or sends an error page itself and returns false.

package protocol

import (
	stderrors "errors"
	"strings"

	"go.uber.org/zap"

	"github.com/momentics/hioload-httpd/api"
)

type handlerFunc func(c *Conn) bool

var handlers = map[Method]handlerFunc{
	MethodGet:  (*Conn).serveStatic,
	MethodHead: (*Conn).serveStatic,
	MethodPost: (*Conn).serveEcho,
}

const (
	helloTarget = "/hello"
	indexFile   = "index.html"
)

func (c *Conn) dispatch() bool {
	h, ok := handlers[c.req.Method]
	if !ok {
		c.fail(400, "unsupported method")
		return false
	}
	return h(c)
}

func (c *Conn) okResponse() *responseWriter {
	w := &responseWriter{buf: c.out[:0]}
	w.statusLine(c.req.Version, 200)
	w.common(c.opts.Now(), c.opts.ServerName)
	w.connection(c.keepAlive, c.opts.KeepAliveTimeout)
	return w
}

// serveStatic answers GET and HEAD. Both produce the same headers; HEAD
// omits the body.
func (c *Conn) serveStatic() bool {
	withBody := c.req.Method == MethodGet
	target := c.req.Target
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}

	if target == helloTarget {
		w := c.okResponse()
		msg := []byte("Hello World")
		w.body("text/plain", msg, int64(len(msg)), withBody)
		c.out = w.buf
		return true
	}

	name := strings.TrimPrefix(target, "/")
	if name == "" {
		name = indexFile
	}
	if c.opts.Files == nil {
		c.fail(404, "Not Found")
		return false
	}
	f, err := c.opts.Files.Resolve(name)
	if err != nil {
		if !stderrors.Is(err, api.ErrNotFound) {
			c.log.Warn("resolve failed", zap.String("target", name), zap.Error(err))
		}
		c.fail(404, "Not Found")
		return false
	}
	defer f.Close()

	w := c.okResponse()
	w.body(c.opts.Mime.ForPath(name), f.Bytes(), f.Size(), withBody)
	c.out = w.buf
	return true
}

// serveEcho answers POST with the request body in upper case.
func (c *Conn) serveEcho() bool {
	body := make([]byte, len(c.req.Body))
	for i, b := range c.req.Body {
		if 'a' <= b && b <= 'z' {
			b -= 'a' - 'A'
		}
		body[i] = b
	}
	w := c.okResponse()
	w.body("text/plain", body, int64(len(body)), true)
	c.out = w.buf
	return true
}
