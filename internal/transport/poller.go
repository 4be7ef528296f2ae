package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ytget/dlsync/internal/clock"
	"github.com/ytget/dlsync/internal/model"
)

// Poller requests the status endpoint at a fixed interval. Requests are not
// serialized: a slow response may arrive after the next one was dispatched,
// so every result carries its dispatch sequence number.
type Poller struct {
	fetch   Fetcher
	handler Handler
	opts    Options

	mu      sync.Mutex
	running bool
	gen     uint64
	seq     uint64
	timer   clock.Timer
	last    Outcome
}

// NewPoller creates an idle poller
func NewPoller(fetch Fetcher, handler Handler, opts Options) *Poller {
	return &Poller{
		fetch:   fetch,
		handler: handler,
		opts:    opts.withDefaults(),
	}
}

// Mode returns the transport mode reported in connection events
func (p *Poller) Mode() string {
	return model.ModePolling
}

// Start begins polling with one immediate request. Calling Start on a
// running poller does nothing.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.gen++
	gen := p.gen
	// outcomes of an earlier run say nothing about this one
	p.last = Outcome{}
	p.mu.Unlock()

	p.poll(gen)
}

// Stop cancels the next scheduled poll. Requests already in flight complete,
// but their results are dropped.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Running reports whether the poller is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastOutcome returns the last result accepted since the latest Start
func (p *Poller) LastOutcome() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Poller) poll(gen uint64) {
	p.mu.Lock()
	if !p.running || p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.seq++
	seq := p.seq
	// the next cycle is armed at dispatch so the interval stays fixed
	p.timer = p.opts.Clock.AfterFunc(p.opts.Interval, func() { p.poll(gen) })
	p.mu.Unlock()

	p.opts.Spawn(func() {
		payload, err := p.request()
		p.complete(gen, Result{Seq: seq, Payload: payload, Err: err})
	})
}

func (p *Poller) request() (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()
	return p.fetch(ctx)
}

// complete samples liveness at completion time, not at dispatch time, so a
// Stop that ran while the request was in flight always wins.
func (p *Poller) complete(gen uint64, res Result) {
	if !p.accept(gen, res) {
		return
	}
	if res.Err != nil {
		log.Printf("poll %d failed: %v", res.Seq, res.Err)
	}

	p.opts.Executor.Post(func() {
		if !p.live(gen) {
			return
		}
		p.handler(res)
	})
}

func (p *Poller) accept(gen uint64, res Result) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.gen != gen {
		return false
	}
	if res.Seq > p.last.Seq {
		p.last = Outcome{Seq: res.Seq, At: p.opts.Clock.Now(), Err: res.Err}
	}
	return true
}

func (p *Poller) live(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.gen == gen
}
