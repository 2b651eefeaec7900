package eventbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(zerolog.Nop())
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(MessageEvent{ID: 1, SessionName: "default", Role: "user", Content: "hi"})

	select {
	case ev := <-ch:
		if ev.Content != "hi" {
			t.Fatalf("unexpected content: %q", ev.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(zerolog.Nop())
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	b.Publish(MessageEvent{ID: 1, SessionName: "default", Role: "user", Content: "hi"})

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestPublishEvictsSlowSubscriber(t *testing.T) {
	b := New(zerolog.Nop())
	b.capacity = 1
	ch := b.Subscribe()

	b.Publish(MessageEvent{ID: 1})
	b.Publish(MessageEvent{ID: 2})

	b.mu.Lock()
	_, stillSubscribed := b.subscribers[ch]
	b.mu.Unlock()
	if stillSubscribed {
		t.Fatal("expected slow subscriber to be evicted")
	}
}

func TestPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := New(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		b.Publish(MessageEvent{ID: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}
