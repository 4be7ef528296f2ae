package connection

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/ytget/dlsync/internal/clock"
	"github.com/ytget/dlsync/internal/eventloop"
	"github.com/ytget/dlsync/internal/model"
	"github.com/ytget/dlsync/internal/transport"
)

type fakeSource struct {
	starts  int
	stops   int
	running bool
	last    transport.Outcome
}

func (s *fakeSource) Start() {
	if s.running {
		return
	}
	s.running = true
	s.starts++
}

func (s *fakeSource) Stop() {
	if !s.running {
		return
	}
	s.running = false
	s.stops++
}

func (s *fakeSource) Running() bool                  { return s.running }
func (s *fakeSource) LastOutcome() transport.Outcome { return s.last }
func (s *fakeSource) Mode() string                   { return model.ModePolling }

type queueExecutor struct {
	queue []func()
}

func (q *queueExecutor) Post(f func()) bool {
	q.queue = append(q.queue, f)
	return true
}

func (q *queueExecutor) drain() {
	for len(q.queue) > 0 {
		f := q.queue[0]
		q.queue = q.queue[1:]
		f()
	}
}

func states(events []model.ConnectionEvent) []model.ConnectionState {
	out := make([]model.ConnectionState, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.State)
	}
	return out
}

func TestMachine_ReconnectBoundWithPoller(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	var events []model.ConnectionEvent
	var m *Machine

	poller := transport.NewPoller(func(context.Context) (any, error) {
		calls++
		return nil, errors.New("connection refused")
	}, func(r transport.Result) { m.Observe(r) }, transport.Options{
		Clock:    fake,
		Executor: eventloop.Inline{},
		Spawn:    func(f func()) { f() },
	})

	m = New(poller, func(ev model.ConnectionEvent) { events = append(events, ev) }, Options{
		MaxAttempts: 3,
		Clock:       fake,
		Executor:    eventloop.Inline{},
	})

	m.Connect()
	fake.Advance(DefaultReconnectInterval)
	fake.Advance(DefaultReconnectInterval)

	if m.State() != model.ConnectionError {
		t.Errorf("Expected error state, got %v", m.State())
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if !m.Pinned() {
		t.Error("Expected machine to be pinned")
	}
	if fake.Pending() != 0 {
		t.Errorf("Expected no timers once pinned, got %d", fake.Pending())
	}

	fake.Advance(2 * DefaultReconnectInterval)
	if calls != 3 {
		t.Errorf("Expected no fourth attempt, got %d", calls)
	}

	expected := []model.ConnectionState{
		model.ConnectionConnecting, model.ConnectionError,
		model.ConnectionConnecting, model.ConnectionError,
		model.ConnectionConnecting, model.ConnectionError,
	}
	if !reflect.DeepEqual(states(events), expected) {
		t.Errorf("Expected %v, got %v", expected, states(events))
	}
	if last := events[len(events)-1]; last.Attempts != 3 || last.Error == "" || last.Mode != model.ModePolling {
		t.Errorf("Unexpected final event: %+v", last)
	}
}

func TestMachine_SuccessResetsAttempts(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := &fakeSource{}
	var events []model.ConnectionEvent
	m := New(src, func(ev model.ConnectionEvent) { events = append(events, ev) }, Options{Clock: fake})

	m.Connect()
	m.Observe(transport.Result{Err: errors.New("timeout")})
	if m.Attempts() != 1 || src.running {
		t.Fatalf("Expected one attempt and a stopped source, got %d running=%v", m.Attempts(), src.running)
	}

	fake.Advance(DefaultReconnectInterval)
	if src.starts != 2 || m.State() != model.ConnectionConnecting {
		t.Fatalf("Expected retry to restart the source, got starts=%d state=%v", src.starts, m.State())
	}

	m.Observe(transport.Result{Seq: 2})
	if m.State() != model.ConnectionConnected || m.Attempts() != 0 {
		t.Errorf("Expected connected with 0 attempts, got %v with %d", m.State(), m.Attempts())
	}

	m.Observe(transport.Result{Seq: 3})
	if len(events) != 4 {
		t.Errorf("Expected repeated success to publish nothing, got %d events", len(events))
	}
}

func TestMachine_ConnectedFailureGoesToError(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := &fakeSource{}
	m := New(src, nil, Options{Clock: fake})

	m.Connect()
	m.Observe(transport.Result{})
	m.Observe(transport.Result{Err: errors.New("502")})

	if m.State() != model.ConnectionError || m.Attempts() != 1 {
		t.Errorf("Expected error with 1 attempt, got %v with %d", m.State(), m.Attempts())
	}
}

func TestMachine_ConnectIsNoopWhileConnected(t *testing.T) {
	src := &fakeSource{}
	m := New(src, nil, Options{Clock: clock.NewFake(time.Unix(0, 0))})

	m.Connect()
	m.Observe(transport.Result{})
	m.Connect()

	if src.starts != 1 || m.State() != model.ConnectionConnected {
		t.Errorf("Expected single start and connected state, got starts=%d state=%v", src.starts, m.State())
	}
}

func TestMachine_ManualConnectAfterExhaustion(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := &fakeSource{}
	m := New(src, nil, Options{Clock: fake, MaxAttempts: 1})

	m.Connect()
	m.Observe(transport.Result{Err: errors.New("down")})
	if !m.Pinned() || fake.Pending() != 0 {
		t.Fatalf("Expected pinned machine without timers, pending=%d", fake.Pending())
	}

	m.Connect()
	if m.Attempts() != 0 || m.State() != model.ConnectionConnecting || src.starts != 2 {
		t.Errorf("Expected manual connect to reset and retry, got attempts=%d state=%v starts=%d",
			m.Attempts(), m.State(), src.starts)
	}
}

func TestMachine_DisconnectCancelsPendingRetry(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := &fakeSource{}
	m := New(src, nil, Options{Clock: fake})

	m.Connect()
	m.Observe(transport.Result{Err: errors.New("down")})
	m.Disconnect()

	if fake.Pending() != 0 {
		t.Errorf("Expected no timers after disconnect, got %d", fake.Pending())
	}
	fake.Advance(10 * DefaultReconnectInterval)
	if src.starts != 1 || m.State() != model.ConnectionDisconnected {
		t.Errorf("Expected no retry after disconnect, got starts=%d state=%v", src.starts, m.State())
	}
}

func TestMachine_DisconnectBeatsQueuedRetry(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	exec := &queueExecutor{}
	src := &fakeSource{}
	m := New(src, nil, Options{Clock: fake, Executor: exec})

	m.Connect()
	m.Observe(transport.Result{Err: errors.New("down")})

	// the retry timer fires and queues its callback before Disconnect runs
	fake.Advance(DefaultReconnectInterval)
	m.Disconnect()
	exec.drain()

	if src.starts != 1 || m.State() != model.ConnectionDisconnected {
		t.Errorf("Expected disconnect to win, got starts=%d state=%v", src.starts, m.State())
	}
}

func TestMachine_LateResultsIgnoredAfterDisconnect(t *testing.T) {
	src := &fakeSource{}
	var events []model.ConnectionEvent
	m := New(src, func(ev model.ConnectionEvent) { events = append(events, ev) },
		Options{Clock: clock.NewFake(time.Unix(0, 0))})

	m.Connect()
	m.Disconnect()
	m.Observe(transport.Result{})
	m.Observe(transport.Result{Err: errors.New("late")})

	if m.State() != model.ConnectionDisconnected {
		t.Errorf("Expected disconnected, got %v", m.State())
	}
	if !reflect.DeepEqual(states(events), []model.ConnectionState{model.ConnectionConnecting, model.ConnectionDisconnected}) {
		t.Errorf("Unexpected events: %v", states(events))
	}
}

func TestMachine_LivenessRestartsStoppedSource(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := &fakeSource{}
	m := New(src, nil, Options{Clock: fake})

	m.Connect()
	m.Observe(transport.Result{})
	src.running = false

	fake.Advance(DefaultLivenessInterval)

	if src.starts != 2 {
		t.Errorf("Expected liveness check to restart the source, got %d starts", src.starts)
	}
	if m.State() != model.ConnectionConnecting {
		t.Errorf("Expected connecting, got %v", m.State())
	}
}

func TestMachine_LivenessPicksUpMissedSuccess(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := &fakeSource{}
	m := New(src, nil, Options{Clock: fake})

	m.Connect()
	src.last = transport.Outcome{Seq: 1, At: fake.Now()}

	fake.Advance(DefaultLivenessInterval)

	if m.State() != model.ConnectionConnected {
		t.Errorf("Expected connected, got %v", m.State())
	}
}

func TestMachine_LivenessIgnoresOutcomeOfPreviousSession(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	hang := false
	var m *Machine

	poller := transport.NewPoller(func(context.Context) (any, error) {
		return []any{}, nil
	}, func(r transport.Result) { m.Observe(r) }, transport.Options{
		Clock:    fake,
		Executor: eventloop.Inline{},
		Spawn: func(f func()) {
			// requests of the second session never complete
			if !hang {
				f()
			}
		},
	})
	m = New(poller, nil, Options{Clock: fake, Executor: eventloop.Inline{}})

	m.Connect()
	if m.State() != model.ConnectionConnected {
		t.Fatalf("Expected connected after first poll, got %v", m.State())
	}
	m.Disconnect()

	hang = true
	m.Connect()
	if m.State() != model.ConnectionConnecting {
		t.Fatalf("Expected connecting while the request is in flight, got %v", m.State())
	}

	fake.Advance(DefaultLivenessInterval)
	if m.State() != model.ConnectionConnecting {
		t.Errorf("Expected connecting without a successful poll in this session, got %v", m.State())
	}
}

func TestMachine_LivenessNeedsOutcomeNewerThanStart(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	src := &fakeSource{last: transport.Outcome{Seq: 7, At: fake.Now()}}
	m := New(src, nil, Options{Clock: fake})

	m.Connect()
	fake.Advance(DefaultLivenessInterval)
	if m.State() != model.ConnectionConnecting {
		t.Fatalf("Expected a leftover outcome to be ignored, got %v", m.State())
	}

	src.last = transport.Outcome{Seq: 8, At: fake.Now()}
	fake.Advance(DefaultLivenessInterval)
	if m.State() != model.ConnectionConnected {
		t.Errorf("Expected connected after a newer success, got %v", m.State())
	}
}
