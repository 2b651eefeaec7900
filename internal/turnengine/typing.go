package turnengine

import (
	"context"
	"sync"
	"time"
)

// typingInterval is the fixed re-send cadence for the per-turn typing
// indicator (spec §5: "suspends on a ~4s sleep in a cancellable loop").
const typingInterval = 4 * time.Second

// typingSender is the minimal capability the indicator needs from a
// transport.Context.
type typingSender interface {
	SendTyping(ctx context.Context) error
}

// typingIndicator re-sends a "typing" signal on a fixed interval for the
// duration of one turn. Adapted from pkg/connector/typing_controller.go's
// ticker + sealed-state-machine shape, simplified to a single fixed
// interval with no TTL (a turn has no open-ended idle period to guard
// against — it always ends with a reply).
type typingIndicator struct {
	send typingSender
	ctx  context.Context

	mu     sync.Mutex
	active bool
	sealed bool
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newTypingIndicator(ctx context.Context, send typingSender) *typingIndicator {
	return &typingIndicator{ctx: ctx, send: send}
}

// Start begins the loop. A no-op if already started or already stopped.
func (t *typingIndicator) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active || t.sealed {
		return
	}
	t.active = true
	t.ticker = time.NewTicker(typingInterval)
	t.stop = make(chan struct{})

	_ = t.send.SendTyping(t.ctx)

	t.wg.Add(1)
	go t.loop(t.ticker.C, t.stop)
}

func (t *typingIndicator) loop(tick <-chan time.Time, stop <-chan struct{}) {
	defer t.wg.Done()
	for {
		select {
		case <-stop:
			return
		case <-t.ctx.Done():
			return
		case <-tick:
			t.mu.Lock()
			sealed := t.sealed
			t.mu.Unlock()
			if sealed {
				return
			}
			_ = t.send.SendTyping(t.ctx)
		}
	}
}

// Stop seals the state machine and waits for the loop goroutine to exit.
// Idempotent.
func (t *typingIndicator) Stop() {
	t.mu.Lock()
	if t.sealed {
		t.mu.Unlock()
		return
	}
	t.sealed = true
	active := t.active
	if active {
		close(t.stop)
		t.ticker.Stop()
	}
	t.mu.Unlock()
	if active {
		t.wg.Wait()
	}
}
