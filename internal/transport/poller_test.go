package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ytget/dlsync/internal/clock"
	"github.com/ytget/dlsync/internal/eventloop"
	"github.com/ytget/dlsync/internal/normalize"
)

func syncOptions(c clock.Clock) Options {
	return Options{
		Clock:    c,
		Executor: eventloop.Inline{},
		Spawn:    func(f func()) { f() },
	}
}

func TestPoller_StartPollsImmediatelyThenOnInterval(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	var results []Result

	p := NewPoller(func(context.Context) (any, error) {
		calls++
		return []any{}, nil
	}, func(r Result) { results = append(results, r) }, syncOptions(fake))

	p.Start()
	if calls != 1 {
		t.Fatalf("Expected immediate poll, got %d calls", calls)
	}

	p.Start()
	if calls != 1 {
		t.Errorf("Expected Start to be idempotent, got %d calls", calls)
	}

	fake.Advance(DefaultPollInterval - time.Millisecond)
	if calls != 1 {
		t.Errorf("Expected no poll before the interval, got %d calls", calls)
	}

	fake.Advance(time.Millisecond)
	fake.Advance(DefaultPollInterval)
	if calls != 3 {
		t.Errorf("Expected 3 polls, got %d", calls)
	}

	if len(results) != 3 || results[2].Seq != 3 {
		t.Errorf("Expected 3 sequenced results, got %+v", results)
	}
}

func TestPoller_StopCancelsTimer(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	calls := 0
	p := NewPoller(func(context.Context) (any, error) {
		calls++
		return nil, nil
	}, func(Result) {}, syncOptions(fake))

	p.Start()
	p.Stop()

	if fake.Pending() != 0 {
		t.Errorf("Expected no pending timers after Stop, got %d", fake.Pending())
	}
	if p.Running() {
		t.Error("Expected poller to be idle")
	}

	fake.Advance(10 * DefaultPollInterval)
	if calls != 1 {
		t.Errorf("Expected no polls after Stop, got %d calls", calls)
	}
}

func TestPoller_DiscardsResultCompletingAfterStop(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	var inFlight []func()
	delivered := 0

	opts := syncOptions(fake)
	opts.Spawn = func(f func()) { inFlight = append(inFlight, f) }

	p := NewPoller(func(context.Context) (any, error) {
		return []any{}, nil
	}, func(Result) { delivered++ }, opts)

	p.Start()
	p.Stop()
	for _, f := range inFlight {
		f()
	}

	if delivered != 0 {
		t.Errorf("Expected stale result to be discarded, got %d deliveries", delivered)
	}
	if p.LastOutcome().Known() {
		t.Error("Expected stale result not to be recorded as last outcome")
	}
}

func TestPoller_DiscardsResultFromPreviousRun(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	var inFlight []func()
	var seqs []uint64

	opts := syncOptions(fake)
	opts.Spawn = func(f func()) { inFlight = append(inFlight, f) }

	p := NewPoller(func(context.Context) (any, error) {
		return nil, nil
	}, func(r Result) { seqs = append(seqs, r.Seq) }, opts)

	p.Start()
	p.Stop()
	p.Start()
	for _, f := range inFlight {
		f()
	}

	if len(seqs) != 1 || seqs[0] != 2 {
		t.Errorf("Expected only the second run's result, got %v", seqs)
	}
}

func TestPoller_ReportsFailures(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	boom := errors.New("boom")
	var got Result

	p := NewPoller(func(context.Context) (any, error) {
		return nil, boom
	}, func(r Result) { got = r }, syncOptions(fake))
	p.Start()

	if !errors.Is(got.Err, boom) {
		t.Errorf("Expected boom, got %v", got.Err)
	}
	if p.LastOutcome().OK() {
		t.Error("Expected last outcome to be a failure")
	}
}

func TestPoller_RecoversFetchPanic(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	var got Result

	p := NewPoller(func(context.Context) (any, error) {
		panic("bad fetch")
	}, func(r Result) { got = r }, syncOptions(fake))
	p.Start()

	if got.Err == nil {
		t.Error("Expected panic to be reported as an error")
	}
}

func TestPoller_HTTPStatusFailure(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = io.WriteString(w, `[{"task_id":"t1","status":"pending"}]`)
	}))
	defer srv.Close()

	fetch := func(ctx context.Context) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return normalize.Decode(body)
	}

	fake := clock.NewFake(time.Unix(0, 0))
	var results []Result
	p := NewPoller(fetch, func(r Result) { results = append(results, r) }, syncOptions(fake))

	p.Start()
	status.Store(http.StatusServiceUnavailable)
	fake.Advance(DefaultPollInterval)
	p.Stop()

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil || len(normalize.Normalize(results[0].Payload).Updates) != 1 {
		t.Errorf("Expected first poll to succeed with one task, got %+v", results[0])
	}
	if results[1].Err == nil {
		t.Error("Expected non-2xx response to be a failure")
	}
}

func TestPoller_StartClearsLastOutcome(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	hang := false
	opts := syncOptions(fake)
	opts.Spawn = func(f func()) {
		if !hang {
			f()
		}
	}
	p := NewPoller(func(context.Context) (any, error) { return []any{}, nil }, func(Result) {}, opts)

	p.Start()
	if !p.LastOutcome().OK() {
		t.Fatalf("Expected a successful outcome, got %+v", p.LastOutcome())
	}
	p.Stop()

	hang = true
	p.Start()
	if p.LastOutcome().Known() {
		t.Errorf("Expected no outcome before the first result of a new run, got %+v", p.LastOutcome())
	}
}

func TestPoller_LastOutcomeKeepsNewestSeq(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	var queue []func()
	opts := syncOptions(fake)
	opts.Spawn = func(f func()) { queue = append(queue, f) }
	p := NewPoller(func(context.Context) (any, error) { return []any{}, nil }, func(Result) {}, opts)

	p.Start()
	fake.Advance(DefaultPollInterval)
	if len(queue) != 2 {
		t.Fatalf("Expected 2 queued polls, got %d", len(queue))
	}
	queue[1]()
	queue[0]()

	if got := p.LastOutcome().Seq; got != 2 {
		t.Errorf("Expected last outcome seq 2, got %d", got)
	}
}
