package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store"
)

type fakeMonitorStore struct {
	mu          sync.Mutex
	topics      map[string]*store.MonitorTopic
	entities    map[string]*store.MonitorEntity
	resources   map[int64]*store.MonitorResource
	snapshots   map[int64][]*store.MonitorSnapshot // resourceID -> newest first
	digests     []*store.MonitorDigest
	subscribers []*store.MonitorSubscriber
	nextSnapID  int64
	nextDigID   int64
}

func newFakeMonitorStore() *fakeMonitorStore {
	return &fakeMonitorStore{
		topics:    map[string]*store.MonitorTopic{},
		entities:  map[string]*store.MonitorEntity{},
		resources: map[int64]*store.MonitorResource{},
		snapshots: map[int64][]*store.MonitorSnapshot{},
	}
}

func (f *fakeMonitorStore) GetMonitorTopic(ctx context.Context, name string) (*store.MonitorTopic, error) {
	return f.topics[name], nil
}

func (f *fakeMonitorStore) ListMonitorTopics(ctx context.Context, enabledOnly bool) ([]*store.MonitorTopic, error) {
	var out []*store.MonitorTopic
	for _, t := range f.topics {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeMonitorStore) GetMonitorEntity(ctx context.Context, name string) (*store.MonitorEntity, error) {
	return f.entities[name], nil
}

func (f *fakeMonitorStore) ListMonitorEntities(ctx context.Context, topicID int64, enabledOnly bool) ([]*store.MonitorEntity, error) {
	var out []*store.MonitorEntity
	for _, e := range f.entities {
		if topicID != 0 && e.TopicID != topicID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeMonitorStore) ListMonitorResources(ctx context.Context, entityID, topicID int64, enabledOnly bool) ([]*store.MonitorResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.MonitorResource
	for _, r := range f.resources {
		if entityID != 0 && r.EntityID != entityID {
			continue
		}
		if topicID != 0 && r.TopicID != topicID {
			continue
		}
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeMonitorStore) GetMonitorResource(ctx context.Context, id int64) (*store.MonitorResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resources[id], nil
}

func (f *fakeMonitorStore) AddMonitorSnapshot(ctx context.Context, snap store.MonitorSnapshot) (*store.MonitorSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSnapID++
	snap.ID = f.nextSnapID
	stored := snap
	f.snapshots[snap.ResourceID] = append([]*store.MonitorSnapshot{&stored}, f.snapshots[snap.ResourceID]...)
	return &stored, nil
}

func (f *fakeMonitorStore) LatestMonitorSnapshot(ctx context.Context, resourceID int64) (*store.MonitorSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snaps := f.snapshots[resourceID]
	if len(snaps) == 0 {
		return nil, nil
	}
	return snaps[0], nil
}

func (f *fakeMonitorStore) RecentMonitorSnapshots(ctx context.Context, resourceID int64, limit int) ([]*store.MonitorSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snaps := f.snapshots[resourceID]
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

func (f *fakeMonitorStore) UpdateMonitorResourceChecked(ctx context.Context, id int64, changed bool) error {
	return nil
}

func (f *fakeMonitorStore) AddMonitorDigest(ctx context.Context, d store.MonitorDigest) (*store.MonitorDigest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextDigID++
	d.ID = f.nextDigID
	stored := d
	f.digests = append(f.digests, &stored)
	return &stored, nil
}

func (f *fakeMonitorStore) ListMonitorDigests(ctx context.Context, topicID, entityID, resourceID int64, limit int) ([]*store.MonitorDigest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.MonitorDigest
	for i := len(f.digests) - 1; i >= 0; i-- {
		d := f.digests[i]
		if topicID != 0 && d.TopicID != topicID {
			continue
		}
		if entityID != 0 && d.EntityID != entityID {
			continue
		}
		if resourceID != 0 && d.ResourceID != resourceID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMonitorStore) MonitorDigestExistsForSnapshot(ctx context.Context, snapshotID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.digests {
		if d.SnapshotID == snapshotID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMonitorStore) ListMonitorSubscribers(ctx context.Context, topicID, entityID, resourceID int64) ([]*store.MonitorSubscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.MonitorSubscriber
	for _, s := range f.subscribers {
		if topicID != 0 && s.TopicID != topicID {
			continue
		}
		if entityID != 0 && s.EntityID != entityID {
			continue
		}
		if resourceID != 0 && s.ResourceID != resourceID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	content map[int64]string
	seq     map[int64]int
	byURL   map[string][]string
}

func (f *fakeFetcher) Fetch(ctx context.Context, resourceType, rawURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := f.byURL[rawURL]
	i := f.seq[rawURL]
	if i >= len(pages) {
		i = len(pages) - 1
	}
	f.seq[rawURL]++
	return pages[i], nil
}

func newEngineForTest(st Store, fetcher Fetcher, runner Runner) *Engine {
	return New(st, fetcher, runner, "/tmp", "/tmp/reports", zerolog.Nop())
}

func TestCheckResourceBaseline(t *testing.T) {
	st := newFakeMonitorStore()
	st.resources[1] = &store.MonitorResource{ID: 1, TopicID: 1, EntityID: 1, Name: "Acme Blog", URL: "https://acme.test/blog", ResourceType: "blog", Enabled: true}
	fetcher := &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{"https://acme.test/blog": {"hello"}}}
	e := newEngineForTest(st, fetcher, &fakeRunner{})

	result, err := e.CheckResource(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if !result.IsBaseline {
		t.Fatal("expected first check to be a baseline")
	}
	if result.HasChanges {
		t.Fatal("baseline should not report HasChanges")
	}
}

func TestCheckResourceDetectsChange(t *testing.T) {
	st := newFakeMonitorStore()
	st.resources[1] = &store.MonitorResource{ID: 1, TopicID: 1, EntityID: 1, Name: "Acme Blog", URL: "https://acme.test/blog", ResourceType: "blog", Enabled: true}
	fetcher := &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{
		"https://acme.test/blog": {"version one", "version two"},
	}}
	e := newEngineForTest(st, fetcher, &fakeRunner{})

	if _, err := e.CheckResource(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error on baseline check: %v", err)
	}
	result, err := e.CheckResource(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error on second check: %v", err)
	}
	if result.IsBaseline {
		t.Fatal("second check should not be a baseline")
	}
	if !result.HasChanges {
		t.Fatal("expected changed content to be detected")
	}
}

func TestRunSweepSummarizesChangedResources(t *testing.T) {
	st := newFakeMonitorStore()
	st.topics["competitors"] = &store.MonitorTopic{ID: 1, Name: "competitors", Enabled: true}
	st.resources[1] = &store.MonitorResource{ID: 1, TopicID: 1, EntityID: 1, Name: "Acme Pricing", URL: "https://acme.test/pricing", ResourceType: "pricing", Enabled: true}
	fetcher := &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{
		"https://acme.test/pricing": {"tier: $10/mo", "tier: $20/mo"},
	}}
	runner := &fakeRunner{response: `{"summary": "Price raised to $20/mo.", "change_type": "price_change"}`}
	e := newEngineForTest(st, fetcher, runner)

	if _, err := e.RunSweep(context.Background(), "competitors", ""); err != nil {
		t.Fatalf("unexpected error on baseline sweep: %v", err)
	}
	digests, err := e.RunSweep(context.Background(), "competitors", "")
	if err != nil {
		t.Fatalf("unexpected error on second sweep: %v", err)
	}
	if len(digests) != 1 {
		t.Fatalf("expected one digest, got %d", len(digests))
	}
	if digests[0].ChangeType != "price_change" {
		t.Fatalf("expected price_change, got %q", digests[0].ChangeType)
	}
}

func TestRunSweepUnknownTopicReturnsEmpty(t *testing.T) {
	st := newFakeMonitorStore()
	e := newEngineForTest(st, &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{}}, &fakeRunner{})

	digests, err := e.RunSweep(context.Background(), "does-not-exist", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if digests != nil {
		t.Fatalf("expected nil digests for unknown topic, got %v", digests)
	}
}

func TestGenerateBaselineDigestsSkipsAlreadyDigested(t *testing.T) {
	st := newFakeMonitorStore()
	st.resources[1] = &store.MonitorResource{ID: 1, TopicID: 1, EntityID: 1, Name: "Acme Blog", URL: "https://acme.test/blog", ResourceType: "blog", Enabled: true}
	fetcher := &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{"https://acme.test/blog": {"first post"}}}
	runner := &fakeRunner{response: `{"summary": "Acme published a first post."}`}
	e := newEngineForTest(st, fetcher, runner)

	if _, err := e.CheckResource(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	digests, err := e.GenerateBaselineDigests(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(digests) != 1 {
		t.Fatalf("expected one baseline digest, got %d", len(digests))
	}

	again, err := e.GenerateBaselineDigests(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new baseline digests on second pass, got %d", len(again))
	}
}
