package serial

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultLoopTimeout is the longest a single readiness wait may block.
	DefaultLoopTimeout = 10 * time.Second

	// DefaultStopPollInterval is the WaitForStop polling granularity.
	DefaultStopPollInterval = time.Second
)

// Options configures a Manager.
type Options struct {
	Logger zerolog.Logger

	// ExitAfter stops the manager once this much time has passed since
	// construction. Zero disables the deadline.
	ExitAfter time.Duration

	// ReopenAfter makes TTY devices close and reopen their handle once this
	// interval has passed and no input is pending. Zero disables reopening.
	ReopenAfter time.Duration

	// StartEventLoop releases the event loop immediately instead of waiting
	// for an explicit StartEventLoop call.
	StartEventLoop bool

	// LoopTimeout and StopPollInterval default to DefaultLoopTimeout and
	// DefaultStopPollInterval when zero.
	LoopTimeout      time.Duration
	StopPollInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.LoopTimeout == 0 {
		o.LoopTimeout = DefaultLoopTimeout
	}
	if o.StopPollInterval == 0 {
		o.StopPollInterval = DefaultStopPollInterval
	}
}
