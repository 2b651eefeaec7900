package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/actions"
	"github.com/megobari/megobari/internal/eventbus"
	"github.com/megobari/megobari/internal/monitor"
	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/turnengine"
)

const testToken = "test-token-123"

type fakeStore struct {
	usageRecords []*store.UsageRecord
	messages     []*store.Message
	summaries    []*store.ConversationSummary
	personas     []*store.Persona
	memories     []*store.Memory
	cronJobs     []*store.CronJob
	heartbeats   []*store.HeartbeatCheck
	topics       []*store.MonitorTopic
	entities     []*store.MonitorEntity
	resources    []*store.MonitorResource
	digests      []*store.MonitorDigest
}

func (f *fakeStore) TotalUsage(ctx context.Context) (*store.UsageTotals, error) {
	return &store.UsageTotals{TotalCostUSD: 1.5, QueryCount: 3}, nil
}

func (f *fakeStore) UsageRecords(ctx context.Context, sessionName string, limit int) ([]*store.UsageRecord, error) {
	return f.usageRecords, nil
}

func (f *fakeStore) SessionUsageTotals(ctx context.Context, sessionName string) (*store.UsageTotals, error) {
	return &store.UsageTotals{TotalCostUSD: 0.5}, nil
}

func (f *fakeStore) RecentMessagesAll(ctx context.Context, limit int) ([]*store.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) RecentMessages(ctx context.Context, sessionName string, limit int) ([]*store.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) Summaries(ctx context.Context, sessionName string, limit int) ([]*store.ConversationSummary, error) {
	return f.summaries, nil
}

func (f *fakeStore) ListPersonas(ctx context.Context) ([]*store.Persona, error) {
	return f.personas, nil
}

func (f *fakeStore) GetPersona(ctx context.Context, name string) (*store.Persona, error) {
	for _, p := range f.personas {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*store.Memory, error) {
	return f.memories, nil
}

func (f *fakeStore) ListCronJobs(ctx context.Context, enabledOnly bool) ([]*store.CronJob, error) {
	return f.cronJobs, nil
}

func (f *fakeStore) ListHeartbeatChecks(ctx context.Context, enabledOnly bool) ([]*store.HeartbeatCheck, error) {
	return f.heartbeats, nil
}

func (f *fakeStore) ListMonitorTopics(ctx context.Context, enabledOnly bool) ([]*store.MonitorTopic, error) {
	return f.topics, nil
}

func (f *fakeStore) ListMonitorEntities(ctx context.Context, topicID int64, enabledOnly bool) ([]*store.MonitorEntity, error) {
	return f.entities, nil
}

func (f *fakeStore) ListMonitorResources(ctx context.Context, entityID, topicID int64, enabledOnly bool) ([]*store.MonitorResource, error) {
	return f.resources, nil
}

func (f *fakeStore) ListMonitorDigests(ctx context.Context, topicID, entityID, resourceID int64, limit int) ([]*store.MonitorDigest, error) {
	return f.digests, nil
}

func (f *fakeStore) VerifyDashboardToken(ctx context.Context, token string) (*store.DashboardToken, error) {
	if token == testToken {
		return &store.DashboardToken{ID: 1, Name: "test"}, nil
	}
	return nil, nil
}

func (f *fakeStore) UnsummarizedCount(ctx context.Context, sessionName string) (int, error) {
	return 0, nil
}

type fakeMemoryStore struct{}

func (fakeMemoryStore) SetMemory(ctx context.Context, userID int64, category, key, content string, metadata map[string]any) (*store.Memory, error) {
	return &store.Memory{}, nil
}
func (fakeMemoryStore) DeleteMemory(ctx context.Context, userID int64, category, key string) (bool, error) {
	return true, nil
}
func (fakeMemoryStore) ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*store.Memory, error) {
	return nil, nil
}

type fakeEngineStore struct{}

func (fakeEngineStore) AddMessage(ctx context.Context, sessionName, role, content string, userID int64) (*store.Message, error) {
	return &store.Message{}, nil
}
func (fakeEngineStore) AddUsageRecord(ctx context.Context, u store.UsageRecord) (*store.UsageRecord, error) {
	return &u, nil
}

type fakeRecallStore struct{}

func (fakeRecallStore) RecentSummaries(ctx context.Context, sessionName string, limit int) ([]*store.ConversationSummary, error) {
	return nil, nil
}
func (fakeRecallStore) DefaultPersona(ctx context.Context) (*store.Persona, error) { return nil, nil }
func (fakeRecallStore) ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*store.Memory, error) {
	return nil, nil
}

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	dir := t.TempDir()
	fs := &fakeStore{}
	registry := sessionstore.New(dir, zerolog.Nop())
	executor := actions.NewExecutor(fakeMemoryStore{}, dir+"/restart_notify.json", zerolog.Nop())
	engine := turnengine.New(nil, fakeEngineStore{}, fakeRecallStore{}, registry, executor, zerolog.Nop())
	mon := monitor.New(nil, nil, nil, dir, dir, zerolog.Nop())
	bus := eventbus.New(zerolog.Nop())
	srv := New(fs, registry, engine, nil, mon, bus, zerolog.Nop())
	return srv, fs
}

func authedRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestHealthRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealthWithValidToken(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/api/health"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["bot_running"] != true {
		t.Fatalf("expected bot_running true, got %v", body["bot_running"])
	}
}

func TestListSessionsReflectsRegistry(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.registry.Create("default", "/tmp")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/api/sessions"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sessions []sessionDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "default" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
	if !sessions[0].IsActive {
		t.Fatal("expected newly created session to be active")
	}
}

func TestSessionDetailNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/api/sessions/missing"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUsageRecordsReturnsStoreData(t *testing.T) {
	srv, fs := newTestServer(t)
	fs.usageRecords = []*store.UsageRecord{
		{ID: 1, SessionName: "default", CostUSD: 0.1, CreatedAt: time.Now()},
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/api/usage/records"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var records []usageRecordDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(records) != 1 || records[0].SessionName != "default" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestMonitorDigestsJoinsEntityAndResourceNames(t *testing.T) {
	srv, fs := newTestServer(t)
	fs.digests = []*store.MonitorDigest{
		{ID: 1, EntityID: 10, ResourceID: 20, Summary: "changed", CreatedAt: time.Now()},
	}
	fs.entities = []*store.MonitorEntity{{ID: 10, Name: "Acme", URL: "https://acme.example"}}
	fs.resources = []*store.MonitorResource{{ID: 20, Name: "Blog", ResourceType: "blog", URL: "https://acme.example/blog"}}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/api/monitor/digests"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var digests []digestDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &digests); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(digests) != 1 || digests[0].EntityName != "Acme" || digests[0].ResourceName != "Blog" {
		t.Fatalf("unexpected digests: %+v", digests)
	}
}

func TestMonitorReportFallsBackWhenNoneSaved(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/api/monitor/report"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "No report available. Generate one with /monitor report [topic]." {
		t.Fatalf("unexpected body: %q", rec.Body.String())
	}
}

func TestPersonaNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, authedRequest(http.MethodGet, "/api/personas/ghost"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := map[string]string{
		"Bearer abc123": "abc123",
		"bearer abc123": "",
		"":              "",
		"abc123":        "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestWSRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	server := httptest.NewServer(srv.Router())
	defer server.Close()

	resp, err := http.Get(fmt.Sprintf("http://%s/api/ws/messages", server.Listener.Addr().String()))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for missing token, got %d", resp.StatusCode)
	}
}
