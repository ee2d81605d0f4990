// Package pubsub provides the per-session event bus: one producer, any
// number of subscribers, each receiving the full event history from the
// beginning of the turn followed by live events until the bus closes.
package pubsub

import (
	"context"
	"sync"

	"github.com/tandem-dev/tandem/pkg/protocol"
)

// Bus is an append-only event log with fan-out. Push never blocks on slow
// subscribers; each subscriber drains at its own pace from the shared log.
// After Close, pushes are silently dropped and all subscriptions terminate
// once they have yielded every event pushed before the close.
type Bus struct {
	mu     sync.Mutex
	events []protocol.Event
	closed bool
	wake   chan struct{}
}

func NewBus() *Bus {
	return &Bus{wake: make(chan struct{})}
}

func (b *Bus) Push(ev protocol.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.events = append(b.events, ev)
	close(b.wake)
	b.wake = make(chan struct{})
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.wake)
}

func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Subscribe returns a channel yielding every event pushed before Close in
// push order, starting from the first event, then closing. Cancelling ctx
// detaches the subscriber without affecting the bus or other subscribers.
func (b *Bus) Subscribe(ctx context.Context) <-chan protocol.Event {
	ch := make(chan protocol.Event, 16)
	go func() {
		defer close(ch)
		next := 0
		for {
			b.mu.Lock()
			batch := b.events[next:]
			next = len(b.events)
			closed := b.closed
			wake := b.wake
			b.mu.Unlock()

			for _, ev := range batch {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			if closed {
				return
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
