// File: protocol/response.go
// Author: momentics <momentics@gmail.com>
//
// Response serialization into a connection's output buffer.

package protocol

import (
	"strconv"
	"time"
)

// HTTP-date layout, always rendered in GMT.
const httpDate = "Mon, 02 Jan 2006 15:04:05 GMT"

var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
	408: "Request Time-out",
	413: "Payload Too Large",
	500: "Internal Server Error",
}

// StatusText returns the reason phrase for the codes this server emits.
func StatusText(code int) string { return statusText[code] }

// responseWriter appends one response to buf. Headers are written in a fixed
// order: status line, Date, Server, Connection, Content-Type, Content-Length.
type responseWriter struct {
	buf []byte
}

func (w *responseWriter) statusLine(v Version, code int) {
	if v == VersionNone {
		v = Version11
	}
	w.buf = append(w.buf, v.String()...)
	w.buf = append(w.buf, ' ')
	w.buf = strconv.AppendInt(w.buf, int64(code), 10)
	w.buf = append(w.buf, ' ')
	w.buf = append(w.buf, StatusText(code)...)
	w.buf = append(w.buf, crlf...)
}

func (w *responseWriter) header(name, value string) {
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, ": "...)
	w.buf = append(w.buf, value...)
	w.buf = append(w.buf, crlf...)
}

func (w *responseWriter) common(now time.Time, server string) {
	w.header("Date", now.UTC().Format(httpDate))
	w.header("Server", server)
}

// connection writes Connection and, for persistent connections, the
// Keep-Alive timeout in whole seconds.
func (w *responseWriter) connection(keepAlive bool, timeout time.Duration) {
	if !keepAlive {
		w.header(HeaderConnection, ValueClose)
		return
	}
	w.header(HeaderConnection, ValueKeepAlive)
	w.header(HeaderKeepAlive, "timeout="+strconv.Itoa(int(timeout/time.Second)))
}

// body ends the header block. HEAD responses pass includeBody=false and keep
// the Content-Length of the full representation.
func (w *responseWriter) body(contentType string, payload []byte, size int64, includeBody bool) {
	w.header(HeaderContentType, contentType)
	w.header(HeaderContentLength, strconv.FormatInt(size, 10))
	w.buf = append(w.buf, crlf...)
	if includeBody {
		w.buf = append(w.buf, payload...)
	}
}

// errorPage renders a small HTML error response that always closes the
// connection.
func (w *responseWriter) errorPage(now time.Time, server string, code int, msg string) {
	page := make([]byte, 0, 160+len(msg))
	page = append(page, "<html><title>Error</title><body bgcolor=\"ffffff\">"...)
	page = strconv.AppendInt(page, int64(code), 10)
	page = append(page, ' ')
	page = append(page, msg...)
	page = append(page, "<hr><em> "...)
	page = append(page, server...)
	page = append(page, "</em>\n</body></html>"...)

	w.statusLine(Version11, code)
	w.common(now, server)
	w.connection(false, 0)
	w.body("text/html", page, int64(len(page)), true)
}
