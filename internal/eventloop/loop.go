// Package eventloop runs posted callbacks one at a time on a single
// goroutine, giving subscribers the ordering of a single-threaded event loop.
package eventloop

import (
	"log"
	"sync"
)

// Executor runs posted functions serially
type Executor interface {
	// Post queues f. It never blocks and returns false once the executor is closed.
	Post(f func()) bool
}

// Loop is an Executor backed by one goroutine and an unbounded queue.
// Post is safe to call from inside a running callback.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// New starts a loop goroutine
func New() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Post queues f for execution on the loop goroutine
func (l *Loop) Post(f func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting work, drains what is already queued and waits for
// the loop goroutine to exit. It must not be called from a loop callback.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, f := range batch {
			runSafe(f)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-l.wake
	}
}

func runSafe(f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventloop: callback panicked: %v", r)
		}
	}()
	f()
}

// Inline runs posted functions immediately on the caller's goroutine.
// It is meant for tests that drive everything from one goroutine.
type Inline struct{}

// Post runs f synchronously
func (Inline) Post(f func()) bool {
	runSafe(f)
	return true
}
