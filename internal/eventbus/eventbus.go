// Package eventbus is an in-process broadcast hub for newly logged
// messages, consumed by Dashboard API WebSocket connections.
package eventbus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultCapacity is the default per-subscriber buffered channel size,
// matching the original's asyncio.Queue(maxsize=256).
const defaultCapacity = 256

// MessageEvent is published whenever a new message is logged to a
// session, for relay to Dashboard API stream subscribers.
type MessageEvent struct {
	ID          int64
	SessionName string
	Role        string
	Content     string
	CreatedAt   time.Time
}

// Bus is a broadcast hub: subscribers get a bounded channel of
// MessageEvents; publish is non-blocking and drops (evicts) any
// subscriber whose channel is full rather than blocking the publisher.
type Bus struct {
	mu          sync.Mutex
	subscribers map[chan MessageEvent]struct{}
	capacity    int
	log         zerolog.Logger
}

// New builds a Bus with the default subscriber queue capacity.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan MessageEvent]struct{}),
		capacity:    defaultCapacity,
		log:         log.With().Str("component", "eventbus").Logger(),
	}
}

// Subscribe creates a new subscription channel. Callers must Unsubscribe
// when done, typically in a defer.
func (b *Bus) Subscribe() chan MessageEvent {
	ch := make(chan MessageEvent, b.capacity)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription. Safe to call more than once, and
// safe to call concurrently with Publish.
func (b *Bus) Unsubscribe(ch chan MessageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish broadcasts event to every subscriber without blocking. A
// subscriber whose channel is full is dropped (slow-consumer eviction)
// rather than allowed to stall the publisher.
func (b *Bus) Publish(event MessageEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			delete(b.subscribers, ch)
			close(ch)
			b.log.Debug().Msg("dropped slow dashboard subscriber")
		}
	}
}
