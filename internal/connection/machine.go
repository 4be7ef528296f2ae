// Package connection tracks the link to the status endpoint and drives
// bounded reconnection of a transport source.
//
//	disconnected --Connect--> connecting --success--> connected
//	connecting/connected --failure--> error --retry--> connecting
//	error --attempts == max--> error (pinned until Connect)
//	any --Disconnect--> disconnected
package connection

import (
	"log"
	"sync"
	"time"

	"github.com/ytget/dlsync/internal/clock"
	"github.com/ytget/dlsync/internal/eventloop"
	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/transport"
)

const (
	DefaultReconnectInterval = 3000 * time.Millisecond
	DefaultMaxAttempts       = 5
	DefaultLivenessInterval  = 5000 * time.Millisecond
)

// Options configure the state machine
type Options struct {
	ReconnectInterval time.Duration
	MaxAttempts       int
	LivenessInterval  time.Duration

	Clock clock.Clock
	// Executor runs timer callbacks; it must be the executor that delivers
	// source results so that both are serialized
	Executor eventloop.Executor
}

func (o Options) withDefaults() Options {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.LivenessInterval <= 0 {
		o.LivenessInterval = DefaultLivenessInterval
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Executor == nil {
		o.Executor = eventloop.Inline{}
	}
	return o
}

// Listener is told about every state change
type Listener func(model.ConnectionEvent)

// Machine is the connection state machine. Callbacks are never invoked
// while its lock is held, so listeners may call back into it.
type Machine struct {
	source transport.Source
	notify Listener
	opts   Options

	mu       sync.Mutex
	state    model.ConnectionState
	attempts int
	wanted   bool
	gen      uint64
	// baseline is the source sequence seen before the latest start; liveness
	// only trusts outcomes newer than it
	baseline uint64
	retry    clock.Timer
	liveness clock.Timer
}

// New creates a disconnected machine driving source
func New(source transport.Source, notify Listener, opts Options) *Machine {
	if notify == nil {
		notify = func(model.ConnectionEvent) {}
	}
	return &Machine{
		source: source,
		notify: notify,
		opts:   opts.withDefaults(),
		state:  model.ConnectionDisconnected,
	}
}

// State returns the current connection state
func (m *Machine) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the number of consecutive failures
func (m *Machine) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Pinned reports whether automatic reconnection gave up
func (m *Machine) Pinned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinnedLocked()
}

func (m *Machine) pinnedLocked() bool {
	return m.state == model.ConnectionError && m.attempts >= m.opts.MaxAttempts
}

// Connect starts the source. It is a no-op while connecting or connected;
// from error it resets the attempt counter and retries immediately.
func (m *Machine) Connect() {
	m.mu.Lock()
	if m.wanted && (m.state == model.ConnectionConnecting || m.state == model.ConnectionConnected) {
		m.mu.Unlock()
		return
	}
	m.wanted = true
	m.gen++
	m.attempts = 0
	m.stopTimersLocked()
	m.armLivenessLocked()
	ev := m.transitionLocked(model.ConnectionConnecting, "")
	m.markStartLocked()
	m.mu.Unlock()

	m.notify(ev)
	m.source.Start()
}

// Disconnect stops the source and cancels every timer. It wins over any
// retry that is already scheduled or queued.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	m.wanted = false
	m.gen++
	m.attempts = 0
	m.stopTimersLocked()
	prev := m.state
	ev := m.transitionLocked(model.ConnectionDisconnected, "")
	m.mu.Unlock()

	m.source.Stop()
	if prev != model.ConnectionDisconnected {
		m.notify(ev)
	}
}

// Observe feeds one source result into the machine
func (m *Machine) Observe(res transport.Result) {
	if res.Err != nil {
		m.fail(res.Err)
		return
	}
	m.succeed()
}

func (m *Machine) succeed() {
	m.mu.Lock()
	if !m.wanted || m.state == model.ConnectionConnected {
		m.attempts = 0
		m.mu.Unlock()
		return
	}
	if m.state == model.ConnectionError {
		// a late success from a stopped source does not revive the link
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	ev := m.transitionLocked(model.ConnectionConnected, "")
	m.mu.Unlock()

	m.notify(ev)
}

func (m *Machine) fail(err error) {
	m.mu.Lock()
	if !m.wanted || m.state == model.ConnectionError {
		m.mu.Unlock()
		return
	}
	m.attempts++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}

	ev := m.transitionLocked(model.ConnectionError, err.Error())
	if m.pinnedLocked() {
		log.Printf("connection: giving up after %d attempts: %v", m.attempts, err)
		m.stopTimersLocked()
	} else {
		log.Printf("connection: attempt %d/%d failed, retrying in %v: %v",
			m.attempts, m.opts.MaxAttempts, m.opts.ReconnectInterval, err)
		m.armRetryLocked()
	}
	m.mu.Unlock()

	m.source.Stop()
	m.notify(ev)
}

func (m *Machine) armRetryLocked() {
	gen := m.gen
	m.retry = m.opts.Clock.AfterFunc(m.opts.ReconnectInterval, func() {
		m.opts.Executor.Post(func() { m.onRetry(gen) })
	})
}

func (m *Machine) onRetry(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || !m.wanted || m.state != model.ConnectionError || m.pinnedLocked() {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	ev := m.transitionLocked(model.ConnectionConnecting, "")
	m.markStartLocked()
	m.mu.Unlock()

	m.notify(ev)
	m.source.Start()
}

func (m *Machine) armLivenessLocked() {
	gen := m.gen
	m.liveness = m.opts.Clock.AfterFunc(m.opts.LivenessInterval, func() {
		m.opts.Executor.Post(func() { m.onLiveness(gen) })
	})
}

// onLiveness re-derives the state from the source's last outcome. It covers
// transitions whose notification was lost without polling faster.
func (m *Machine) onLiveness(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || !m.wanted {
		m.mu.Unlock()
		return
	}
	m.liveness = nil
	if m.pinnedLocked() {
		m.mu.Unlock()
		return
	}
	m.armLivenessLocked()

	running := m.source.Running()
	outcome := m.source.LastOutcome()
	state := m.state
	retryPending := m.retry != nil
	fresh := outcome.Known() && outcome.Seq > m.baseline
	m.mu.Unlock()

	switch {
	case state == model.ConnectionConnected && !running:
		log.Printf("connection: source stopped while connected, reconnecting")
		m.restart()
	case state == model.ConnectionConnected && fresh && !outcome.OK():
		m.fail(outcome.Err)
	case state == model.ConnectionConnecting && fresh && outcome.OK():
		m.succeed()
	case state == model.ConnectionError && !retryPending:
		log.Printf("connection: no retry scheduled in error state, reconnecting")
		m.restart()
	}
}

func (m *Machine) restart() {
	m.mu.Lock()
	if !m.wanted {
		m.mu.Unlock()
		return
	}
	ev := m.transitionLocked(model.ConnectionConnecting, "")
	m.markStartLocked()
	m.mu.Unlock()

	m.source.Stop()
	m.notify(ev)
	m.source.Start()
}

func (m *Machine) markStartLocked() {
	m.baseline = m.source.LastOutcome().Seq
}

func (m *Machine) stopTimersLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.liveness != nil {
		m.liveness.Stop()
		m.liveness = nil
	}
}

func (m *Machine) transitionLocked(next model.ConnectionState, errMsg string) model.ConnectionEvent {
	prev := m.state
	m.state = next
	return model.ConnectionEvent{
		State:    next,
		Previous: prev,
		Mode:     m.source.Mode(),
		Attempts: m.attempts,
		Error:    errMsg,
	}
}
