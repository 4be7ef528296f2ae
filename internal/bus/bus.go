// Package bus is a typed publish/subscribe registry keyed by topic. It holds
// no task state and delivers synchronously, in subscription order, on the
// publisher's goroutine.
package bus

import (
	"log"
	"sync"
)

// Topics published by the synchronization service
const (
	// Wildcard receives every event wrapped in an Envelope
	Wildcard = "*"

	TopicTaskStatusUpdate        = "task_status_update"
	TopicDownloadProgress        = "download_progress" // legacy alias of task_status_update
	TopicConnectionStatusChanged = "connection_status_changed"
	TopicSystemStatus            = "system_status"
	TopicTaskSnapshot            = "task_snapshot"
	TopicTaskListChanged         = "task_list_changed"
	TopicTaskRetired             = "task_retired"
	TopicTaskSubmitted           = "task_submitted"
)

// Handler receives published data
type Handler func(data any)

// Envelope is what wildcard subscribers receive
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type subscription struct {
	handler Handler
}

// Bus fans events out to subscribers
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*subscription
}

// New creates an empty bus
func New() *Bus {
	return &Bus{topics: make(map[string][]*subscription)}
}

// Subscribe registers handler for topic and returns a function removing
// exactly this registration. Calling the returned function more than once
// is harmless.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, sub) })
	}
}

func (b *Bus) remove(topic string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s == sub {
			// copy so that snapshots taken by in-progress publishes stay intact
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.topics, topic)
			} else {
				b.topics[topic] = next
			}
			return
		}
	}
}

// Publish delivers data to every subscriber of topic, then to every wildcard
// subscriber. A panicking handler is logged and skipped.
func (b *Bus) Publish(topic string, data any) {
	for _, sub := range b.snapshot(topic) {
		deliver(topic, sub.handler, data)
	}
	if topic == Wildcard {
		return
	}

	subs := b.snapshot(Wildcard)
	if len(subs) == 0 {
		return
	}
	env := Envelope{Type: topic, Data: data}
	for _, sub := range subs {
		deliver(topic, sub.handler, env)
	}
}

// SubscriberCount returns the number of handlers registered for topic
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) snapshot(topic string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.topics[topic]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*subscription, len(subs))
	copy(out, subs)
	return out
}

func deliver(topic string, h Handler, data any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: subscriber for %q panicked: %v", topic, r)
		}
	}()
	h(data)
}
