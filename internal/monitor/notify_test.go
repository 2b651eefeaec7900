package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store"
)

func TestNotifySubscribersPostsSlackWebhookAndSurfacesTelegram(t *testing.T) {
	var receivedBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	st := newFakeMonitorStore()
	config, _ := json.Marshal(map[string]string{"webhook_url": server.URL})
	st.subscribers = []*store.MonitorSubscriber{
		{ID: 1, ChannelType: "slack", ChannelConfig: string(config), TopicID: 1},
		{ID: 2, ChannelType: "telegram", TopicID: 1},
	}
	e := newEngineForTest(st, &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{}}, &fakeRunner{})

	digests := []Digest{{TopicID: 1, ResourceName: "Acme Blog", Summary: "New post.", ChangeType: "new_post"}}
	pending, err := e.NotifySubscribers(context.Background(), digests, "Sweep")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if receivedBody["text"] == "" {
		t.Fatal("expected slack webhook to receive a non-empty text payload")
	}
	if len(pending) != 1 || pending[0].SubscriberID != 2 {
		t.Fatalf("expected one pending telegram notification for subscriber 2, got %+v", pending)
	}
}

func TestNotifySubscribersNoopOnEmptyDigests(t *testing.T) {
	st := newFakeMonitorStore()
	e := New(st, &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{}}, &fakeRunner{}, "/tmp", "/tmp/reports", zerolog.Nop())

	pending, err := e.NotifySubscribers(context.Background(), nil, "Sweep")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pending != nil {
		t.Fatalf("expected nil pending notifications, got %v", pending)
	}
}
