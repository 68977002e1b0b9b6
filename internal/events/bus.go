// Package events carries run progress from the runner to its observers: the
// CLI, the crash-dump tracker and the HTTP event stream.
package events

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber buffer used when New gets a
// non-positive size.
const DefaultBufferSize = 100

// Event is implemented by every run event.
type Event interface {
	EventType() string
	Timestamp() time.Time
	RunID() string
}

// BaseEvent holds the fields shared by all run events.
type BaseEvent struct {
	Type string    `json:"type"`
	Time time.Time `json:"timestamp"`
	Run  string    `json:"run_id"`
}

func (e BaseEvent) EventType() string    { return e.Type }
func (e BaseEvent) Timestamp() time.Time { return e.Time }
func (e BaseEvent) RunID() string        { return e.Run }

// NewBaseEvent stamps an event of the given type for runID.
func NewBaseEvent(eventType, runID string) BaseEvent {
	return BaseEvent{Type: eventType, Time: time.Now(), Run: runID}
}

// Terminal reports whether events of this type end a run.
func Terminal(eventType string) bool {
	switch eventType {
	case TypeVerdictReady, TypeRunAborted, TypeRunFailed:
		return true
	}
	return false
}

type subscription struct {
	ch    chan Event
	runID string
	types map[string]bool
}

func (s *subscription) wants(e Event) bool {
	if s.runID != "" && e.RunID() != s.runID {
		return false
	}
	return len(s.types) == 0 || s.types[e.EventType()]
}

// EventBus fans run events out to subscribers. Publish never blocks: a
// subscriber that falls behind loses its oldest buffered events.
type EventBus struct {
	mu      sync.RWMutex
	subs    []*subscription
	size    int
	dropped atomic.Int64
	closed  bool
}

// New returns a bus whose subscribers buffer up to bufferSize events.
func New(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &EventBus{size: bufferSize}
}

// Subscribe receives events of the given types from every run, or all
// events when no type is given.
func (eb *EventBus) Subscribe(types ...string) <-chan Event {
	return eb.add(&subscription{types: typeSet(types)})
}

// SubscribeRun is Subscribe restricted to a single run.
func (eb *EventBus) SubscribeRun(runID string, types ...string) <-chan Event {
	return eb.add(&subscription{runID: runID, types: typeSet(types)})
}

func typeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func (eb *EventBus) add(sub *subscription) <-chan Event {
	sub.ch = make(chan Event, eb.size)
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		close(sub.ch)
		return sub.ch
	}
	eb.subs = append(eb.subs, sub)
	return sub.ch
}

// Unsubscribe detaches ch and closes it. Unknown channels are ignored.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subs = slices.DeleteFunc(eb.subs, func(s *subscription) bool {
		if s.ch != ch {
			return false
		}
		close(s.ch)
		return true
	})
}

// Publish delivers e to every matching subscriber. Publishing on a closed
// bus is a no-op.
func (eb *EventBus) Publish(e Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	for _, s := range eb.subs {
		if s.wants(e) {
			eb.offer(s.ch, e)
		}
	}
}

// offer sends without blocking, evicting the oldest buffered event when ch
// is full.
func (eb *EventBus) offer(ch chan Event, e Event) {
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case ch <- e:
			return
		default:
		}
		select {
		case <-ch:
			eb.dropped.Add(1)
		default:
		}
	}
	eb.dropped.Add(1)
}

// Dropped returns how many events slow subscribers have lost.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, s := range eb.subs {
		close(s.ch)
	}
	eb.subs = nil
}
