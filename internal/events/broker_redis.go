package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisBroker implements EventBroker over Redis pub/sub so multiple API
// instances see the scheduler's events. Each subscriber owns one pubsub
// connection; the reader goroutine is the only closer of the subscriber
// channel, so publishing after an unsubscribe is always safe.
type RedisBroker struct {
	rdb  *redis.Client
	mu   sync.Mutex
	subs map[chan Event]*redis.PubSub
}

func NewRedisBroker(rdb *redis.Client) *RedisBroker {
	return &RedisBroker{rdb: rdb, subs: map[chan Event]*redis.PubSub{}}
}

func (b *RedisBroker) Subscribe(depotID string) chan Event {
	ch := make(chan Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(depotID))
	// initial consume to ensure the subscription is live
	_, _ = ps.Receive(ctx)

	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

// Unsubscribe closes the subscriber's pubsub connection; that ends the
// reader goroutine, which closes ch.
func (b *RedisBroker) Unsubscribe(depotID string, ch chan Event) {
	b.mu.Lock()
	ps := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(depotID string, evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(depotID), data).Err()
}

func (b *RedisBroker) chanName(depotID string) string { return "depot:" + depotID }
