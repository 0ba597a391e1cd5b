// File: internal/concurrency/mailbox.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Mailbox is the multi-producer, single-consumer task queue a reactor drains
// on its own goroutine. Producers never touch reactor state directly.

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// Mailbox queues closures posted from any goroutine for a single consumer.
type Mailbox struct {
	mu     sync.Mutex
	tasks  *queue.Queue
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{tasks: queue.New()}
}

// Post appends task. It fails with ErrMailboxClosed after Close.
func (m *Mailbox) Post(task func()) error {
	if task == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMailboxClosed
	}
	m.tasks.Add(task)
	return nil
}

// Len returns the number of queued tasks.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks.Length()
}

// Drain runs every task queued at the moment of the call, in FIFO order,
// and returns how many ran. Tasks posted while draining wait for the next
// call. Drain must only be called by the consumer.
func (m *Mailbox) Drain() int {
	m.mu.Lock()
	n := m.tasks.Length()
	batch := make([]func(), 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, m.tasks.Remove().(func()))
	}
	m.mu.Unlock()

	for _, task := range batch {
		task()
	}
	return len(batch)
}

// Close rejects further posts and returns the tasks that were never run.
func (m *Mailbox) Close() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	var left []func()
	for m.tasks.Length() > 0 {
		left = append(left, m.tasks.Remove().(func()))
	}
	return left
}
