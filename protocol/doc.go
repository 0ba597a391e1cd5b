// Package protocol implements the HTTP/1.x side of a connection: an
// incremental request parser, the per-connection state machine driven by
// reactor callbacks, response serialization, MIME lookup and static files.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package protocol
