// Package events fans out planning events to live subscribers, keyed by
// depot. The in-memory broker serves a single process; the Redis broker
// bridges several instances over pub/sub.
package events

import (
	"sync"
)

// Event is one broadcast message for a depot stream.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// PlanCommitted is published after a depot plan transaction commits.
const PlanCommitted = "plan.committed"

// EventBroker is the fan-out boundary shared by the API and the scheduler.
type EventBroker interface {
	Subscribe(depotID string) chan Event
	Unsubscribe(depotID string, ch chan Event)
	Publish(depotID string, evt Event)
}

// Broker is the in-memory EventBroker.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(depotID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[depotID] == nil {
		b.subs[depotID] = map[chan Event]struct{}{}
	}
	b.subs[depotID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(depotID string, ch chan Event) {
	b.mu.Lock()
	if m := b.subs[depotID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, depotID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish drops events for slow subscribers instead of blocking.
func (b *Broker) Publish(depotID string, evt Event) {
	b.mu.Lock()
	for ch := range b.subs[depotID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
