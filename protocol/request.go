// File: protocol/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental HTTP/1.x request parsing over a growing read buffer. Every
// step consumes only what it needs and reports "again" when the buffer ends
// mid-element, so it can be re-entered after the next read.

package protocol

import (
	"bytes"
	"strconv"
	"strings"
)

// State is the position of a connection in its request/response cycle.
type State int

const (
	StateStart State = iota
	StateRequestLineParsed
	StateHeadersParsed
	StateBodyCheck // POST only
	StateDispatched
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRequestLineParsed:
		return "request-line-parsed"
	case StateHeadersParsed:
		return "headers-parsed"
	case StateBodyCheck:
		return "body-check"
	case StateDispatched:
		return "dispatched"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// Method is a supported request method.
type Method int

const (
	MethodNone Method = iota
	MethodGet
	MethodHead
	MethodPost
)

var methodNames = map[string]Method{
	"GET":  MethodGet,
	"HEAD": MethodHead,
	"POST": MethodPost,
}

func (m Method) String() string {
	for name, v := range methodNames {
		if v == m {
			return name
		}
	}
	return ""
}

// Version is the protocol version taken from the request line.
type Version int

const (
	VersionNone Version = iota
	Version10
	Version11
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	}
	return ""
}

// Header names the server reads or writes.
const (
	HeaderConnection    = "Connection"
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
	HeaderKeepAlive     = "Keep-Alive"

	ValueKeepAlive = "keep-alive"
	ValueClose     = "close"
)

// Request holds the fields parsed so far for the current request.
type Request struct {
	Method  Method
	Target  string // always begins with '/'
	Version Version
	Fields  map[string]string
	Body    []byte
}

func (r *Request) reset() {
	r.Method = MethodNone
	r.Target = ""
	r.Version = VersionNone
	r.Body = nil
	for k := range r.Fields {
		delete(r.Fields, k)
	}
}

// KeepAlive reports whether the request asked for a persistent connection.
func (r *Request) KeepAlive() bool {
	return containsToken(r.Fields[HeaderConnection], ValueKeepAlive)
}

// containsToken checks if a comma separated header value holds token,
// ignoring case.
func containsToken(headerValue, token string) bool {
	for _, p := range strings.Split(headerValue, ",") {
		if strings.EqualFold(strings.TrimSpace(p), token) {
			return true
		}
	}
	return false
}

type parseResult int

const (
	parseAgain parseResult = iota
	parseError
	parseOK
)

var crlf = []byte("\r\n")

// parseRequestLine consumes `METHOD SP /target SP HTTP/1.x CRLF` from
// buf[off:] and returns the new offset.
func parseRequestLine(buf []byte, off int, req *Request) (int, parseResult) {
	i := bytes.Index(buf[off:], crlf)
	if i < 0 {
		return off, parseAgain
	}
	parts := bytes.Split(buf[off:off+i], []byte{' '})
	if len(parts) != 3 {
		return off, parseError
	}
	m, ok := methodNames[string(parts[0])]
	if !ok {
		return off, parseError
	}
	if len(parts[1]) == 0 || parts[1][0] != '/' {
		return off, parseError
	}
	var v Version
	switch string(parts[2]) {
	case "HTTP/1.0":
		v = Version10
	case "HTTP/1.1":
		v = Version11
	default:
		return off, parseError
	}
	req.Method = m
	req.Target = string(parts[1])
	req.Version = v
	return off + i + 2, parseOK
}

// parseHeaders consumes complete `Name: value` lines up to and including the
// empty line. Lines already stored survive a parseAgain.
func parseHeaders(buf []byte, off int, req *Request) (int, parseResult) {
	for {
		i := bytes.Index(buf[off:], crlf)
		if i < 0 {
			return off, parseAgain
		}
		if i == 0 {
			return off + 2, parseOK
		}
		name, value, ok := splitHeaderLine(buf[off : off+i])
		if !ok {
			return off, parseError
		}
		req.Fields[name] = value
		off += i + 2
	}
}

// splitHeaderLine requires an upper-case first letter, a colon, exactly one
// space after it and a non-empty value.
func splitHeaderLine(line []byte) (string, string, bool) {
	if len(line) == 0 || line[0] < 'A' || line[0] > 'Z' {
		return "", "", false
	}
	colon := bytes.IndexByte(line, ':')
	if colon < 0 || colon+2 >= len(line) || line[colon+1] != ' ' {
		return "", "", false
	}
	return string(line[:colon]), string(line[colon+2:]), true
}

// checkBody waits for exactly Content-Length bytes after the header block.
// More buffered bytes than declared is malformed.
func checkBody(buf []byte, off int, req *Request) (int, parseResult) {
	raw, ok := req.Fields[HeaderContentLength]
	if !ok {
		return off, parseError
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return off, parseError
	}
	switch have := len(buf) - off; {
	case have < n:
		return off, parseAgain
	case have > n:
		return off, parseError
	}
	req.Body = buf[off : off+n]
	return off + n, parseOK
}
