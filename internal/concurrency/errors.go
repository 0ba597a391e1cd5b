// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "github.com/pkg/errors"

var (
	// ErrInvalidTimeout indicates a negative timer duration
	ErrInvalidTimeout = errors.New("timer timeout must not be negative")

	// ErrMailboxClosed indicates the mailbox no longer accepts tasks
	ErrMailboxClosed = errors.New("mailbox is closed")

	// ErrAffinityNotSupported indicates CPU affinity is not supported on this platform
	ErrAffinityNotSupported = errors.New("CPU affinity not supported")
)
