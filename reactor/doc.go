// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the edge-triggered event loop at the heart of the
// server: a Channel binds one file descriptor to its interest set and
// callbacks, and an EventLoop owns a readiness multiplexer, an fd-indexed
// connection table and a timing wheel, all touched from a single goroutine.
// Other goroutines reach a loop only through Submit, Post, Tick and Quit.
package reactor
