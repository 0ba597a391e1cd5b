// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for the reactor core: the per-reactor timing wheel,
// the cross-goroutine mailbox used to hand work to a reactor, and OS-thread
// pinning for reactor goroutines.
package concurrency
