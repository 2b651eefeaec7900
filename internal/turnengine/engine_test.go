package turnengine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/actions"
	"github.com/megobari/megobari/internal/agentinvoker"
	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/transport"
)

// -- fakes --

type fakeTransport struct {
	mu      sync.Mutex
	replies []string
	edits   map[int]string
	nextID  int
	deleted map[int]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{edits: make(map[int]string), deleted: make(map[int]bool)}
}

func (f *fakeTransport) Args() []string    { return nil }
func (f *fakeTransport) Text() string      { return "" }
func (f *fakeTransport) ChatID() int64     { return 1 }
func (f *fakeTransport) MessageID() int64  { return 1 }
func (f *fakeTransport) UserID() int64     { return 42 }
func (f *fakeTransport) Username() string  { return "tester" }
func (f *fakeTransport) FirstName() string { return "" }
func (f *fakeTransport) LastName() string  { return "" }
func (f *fakeTransport) Caption() string   { return "" }

func (f *fakeTransport) Reply(ctx context.Context, text string, formatted bool) (transport.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	f.nextID++
	id := f.nextID
	f.edits[id] = text
	return id, nil
}
func (f *fakeTransport) ReplyDocument(ctx context.Context, path, filename, caption string) error {
	return nil
}
func (f *fakeTransport) ReplyPhoto(ctx context.Context, path, caption string) error { return nil }
func (f *fakeTransport) SendMessage(ctx context.Context, text string) error         { return nil }
func (f *fakeTransport) EditMessage(ctx context.Context, handle transport.MessageHandle, text string, formatted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := handle.(int)
	f.edits[id] = text
	return nil
}
func (f *fakeTransport) DeleteMessage(ctx context.Context, handle transport.MessageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[handle.(int)] = true
	return nil
}
func (f *fakeTransport) SendTyping(ctx context.Context) error              { return nil }
func (f *fakeTransport) SetReaction(ctx context.Context, e string) error   { return nil }
func (f *fakeTransport) DownloadPhoto(ctx context.Context) (string, error) { return "", nil }
func (f *fakeTransport) DownloadDocument(ctx context.Context) (string, string, error) {
	return "", "", nil
}
func (f *fakeTransport) DownloadVoice(ctx context.Context) (string, error) { return "", nil }
func (f *fakeTransport) TransportName() string                             { return "fake" }
func (f *fakeTransport) MaxMessageLength() int                             { return 4096 }

func (f *fakeTransport) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type fakeStore struct {
	mu       sync.Mutex
	messages int
	usage    int
}

func (s *fakeStore) AddMessage(ctx context.Context, sessionName, role, content string, userID int64) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages++
	return &store.Message{}, nil
}

func (s *fakeStore) AddUsageRecord(ctx context.Context, u store.UsageRecord) (*store.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage++
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

// -- helpers --

func newTestEngine(t *testing.T, sessionsDir string) (*Engine, *sessionstore.Registry) {
	t.Helper()
	inv := agentinvoker.New(os.Args[0], []string{"-test.run=TestTurnEngine_HelperProcess", "--"}, zerolog.Nop())
	registry := sessionstore.New(sessionsDir, zerolog.Nop())
	executor := actions.NewExecutor(fakeMemoryStore{}, sessionsDir+"/restart_notify.json", zerolog.Nop())
	eng := New(inv, &fakeStore{}, fakeRecallStore{}, registry, executor, zerolog.Nop())
	return eng, registry
}

func TestProcessTurn_BatchedReplyAndBusySet(t *testing.T) {
	t.Setenv("GO_WANT_TURNENGINE_HELPER", "1")
	dir := t.TempDir()
	eng, registry := newTestEngine(t, dir)
	session, _ := registry.Create("default", dir)
	session.Streaming = false

	tc := newFakeTransport()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if eng.BusySet().IsBusy(session.Name) {
		t.Fatal("session should not be busy before a turn starts")
	}

	if err := eng.ProcessTurn(ctx, tc, session, 42, "hello"); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if eng.BusySet().IsBusy(session.Name) {
		t.Fatal("session should be released after the turn completes")
	}
	if !strings.Contains(tc.lastReply(), "hi there") {
		t.Fatalf("expected response text in last reply, got %q", tc.lastReply())
	}
	if session.AgentThreadID == "" {
		t.Fatal("expected session to pick up a new agent thread id")
	}
	u := eng.SessionUsage(session.Name)
	if u.CostUSD <= 0 {
		t.Fatal("expected non-zero accumulated usage")
	}
}

// TestTurnEngine_HelperProcess is a subprocess entry point speaking the
// agent CLI's stream-json protocol, reused via os.Args[0] re-exec (same
// pattern as agentinvoker's own tests).
func TestTurnEngine_HelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_TURNENGINE_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	line := func(s string) {
		fmt.Fprintln(w, s)
		w.Flush()
	}

	line(`{"type":"system","subtype":"init","session_id":"thread-1"}`)
	line(`{"type":"assistant","message":{"content":[{"type":"text","text":"hi there"}]}}`)
	line(`{"type":"result","result":"hi there","session_id":"thread-1","total_cost_usd":0.01,"num_turns":1,"duration_api_ms":500,"usage":{"input_tokens":10,"output_tokens":5}}`)
}
