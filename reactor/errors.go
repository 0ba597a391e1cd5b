// File: reactor/errors.go
// Author: momentics <momentics@gmail.com>

package reactor

import (
	"github.com/pkg/errors"

	"github.com/momentics/hioload-httpd/api"
)

var (
	ErrNilChannel    = errors.New("reactor: nil channel")
	ErrNoSession     = errors.New("reactor: connection channel without session")
	ErrFDOutOfRange  = errors.New("reactor: fd exceeds connection table")
	ErrFDInUse       = errors.New("reactor: fd already registered")
	ErrNotRegistered = errors.New("reactor: channel not registered")
	ErrLoopRunning   = errors.New("reactor: loop already running")
	ErrLoopClosed    = errors.Wrap(api.ErrClosed, "reactor: loop closed")
)
