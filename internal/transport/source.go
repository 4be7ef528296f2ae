package transport

import (
	"context"
	"time"

	"github.com/ytget/dlsync/internal/clock"
	"github.com/ytget/dlsync/internal/eventloop"
)

// Result is one outcome of a source. Err is nil on success; Payload may be
// nil even on success.
type Result struct {
	Seq     uint64
	Payload any
	Err     error
}

// Handler receives results on the configured executor
type Handler func(Result)

// Fetcher performs one request to the status endpoint and returns the
// decoded body
type Fetcher func(ctx context.Context) (any, error)

// Source is a start/stop producer of results. The connection state machine
// drives sources through this interface.
type Source interface {
	Start()
	Stop()
	Running() bool
	LastOutcome() Outcome
	Mode() string
}

// Outcome is the last result a source accepted, kept for liveness checks
type Outcome struct {
	Seq uint64
	At  time.Time
	Err error
}

// Known reports whether the source has produced any result yet
func (o Outcome) Known() bool {
	return !o.At.IsZero()
}

// OK reports whether the last result was a success
func (o Outcome) OK() bool {
	return o.Known() && o.Err == nil
}

// Options configure a source
type Options struct {
	// Interval between polls; defaults to DefaultPollInterval
	Interval time.Duration
	// Timeout bounds one request; defaults to DefaultRequestTimeout
	Timeout time.Duration

	Clock    clock.Clock
	Executor eventloop.Executor

	// Spawn dispatches a blocking request; defaults to a new goroutine
	Spawn func(func())
}

const (
	DefaultPollInterval   = 2000 * time.Millisecond
	DefaultRequestTimeout = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultRequestTimeout
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Executor == nil {
		o.Executor = eventloop.Inline{}
	}
	if o.Spawn == nil {
		o.Spawn = func(f func()) { go f() }
	}
	return o
}
