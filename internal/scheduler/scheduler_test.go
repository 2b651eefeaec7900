package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/turnengine"
)

type fakeStore struct {
	mu        sync.Mutex
	jobs      []*store.CronJob
	checks    []*store.HeartbeatCheck
	lastRunOf map[string]int
}

func (f *fakeStore) ListCronJobs(ctx context.Context, enabledOnly bool) ([]*store.CronJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs, nil
}

func (f *fakeStore) UpdateCronLastRun(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastRunOf == nil {
		f.lastRunOf = map[string]int{}
	}
	f.lastRunOf[name]++
	for _, j := range f.jobs {
		if j.Name == name {
			now := time.Now().UTC()
			j.LastRunAt = &now
		}
	}
	return nil
}

func (f *fakeStore) ListHeartbeatChecks(ctx context.Context, enabledOnly bool) ([]*store.HeartbeatCheck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks, nil
}

type fakeRunner struct {
	mu       sync.Mutex
	prompts  []string
	response string
	err      error
}

func (r *fakeRunner) RunAdHoc(ctx context.Context, sessionName, cwd, prompt string, opts ...turnengine.AdHocOption) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	return r.response, r.err
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

type fakeSender struct {
	mu       sync.Mutex
	messages []string
}

func (s *fakeSender) SendToChat(ctx context.Context, chatID int64, text string, formatted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	return nil
}
func (s *fakeSender) SendDocumentToChat(ctx context.Context, chatID int64, path, filename, caption string) error {
	return nil
}
func (s *fakeSender) DefaultChatID() int64  { return 1 }
func (s *fakeSender) MaxMessageLength() int { return 4096 }
func (s *fakeSender) TransportName() string { return "fake" }

func (s *fakeSender) lastMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func TestRunDueCrons_ExecutesDueJobAndUpdatesLastRun(t *testing.T) {
	fs := &fakeStore{jobs: []*store.CronJob{
		{Name: "daily", CronExpression: "* * * * *", Prompt: "say hi", SessionName: "default", CreatedAt: time.Now().UTC().Add(-time.Hour)},
	}}
	runner := &fakeRunner{response: "hi there"}
	sender := &fakeSender{}
	s := New(fs, runner, sender, "/tmp", 0, zerolog.Nop())

	s.runDueCrons(context.Background(), time.Now().UTC())
	deadline := time.Now().Add(2 * time.Second)
	for runner.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if runner.callCount() != 1 {
		t.Fatalf("expected cron job to run once, ran %d times", runner.callCount())
	}
	if fs.lastRunOf["daily"] != 1 {
		t.Fatalf("expected last_run_at to be updated once, got %d", fs.lastRunOf["daily"])
	}
	deadline = time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(sender.lastMessage(), "hi there") {
		t.Fatalf("expected notify message to include response, got %q", sender.lastMessage())
	}
}

func TestRunDueCrons_SkipsNotYetDueJob(t *testing.T) {
	fs := &fakeStore{jobs: []*store.CronJob{
		{Name: "midnight", CronExpression: "0 0 * * *", Prompt: "say hi", SessionName: "default", CreatedAt: time.Now().UTC()},
	}}
	runner := &fakeRunner{}
	sender := &fakeSender{}
	s := New(fs, runner, sender, "/tmp", 0, zerolog.Nop())

	s.runDueCrons(context.Background(), time.Now().UTC())
	time.Sleep(50 * time.Millisecond)

	if runner.callCount() != 0 {
		t.Fatalf("expected job not due yet to be skipped, ran %d times", runner.callCount())
	}
}

func TestRunHeartbeat_SkipsNotifyOnHeartbeatOK(t *testing.T) {
	fs := &fakeStore{checks: []*store.HeartbeatCheck{{Name: "disk", Prompt: "check disk space"}}}
	runner := &fakeRunner{response: "HEARTBEAT_OK"}
	sender := &fakeSender{}
	s := New(fs, runner, sender, "/tmp", 0, zerolog.Nop())

	s.runHeartbeat(context.Background())

	if runner.callCount() != 1 {
		t.Fatalf("expected heartbeat prompt to run once, ran %d times", runner.callCount())
	}
	if sender.count() != 0 {
		t.Fatalf("expected no notification on HEARTBEAT_OK, got %q", sender.lastMessage())
	}
}

func TestRunHeartbeat_NotifiesWhenNotOK(t *testing.T) {
	fs := &fakeStore{checks: []*store.HeartbeatCheck{{Name: "disk", Prompt: "check disk space"}}}
	runner := &fakeRunner{response: "disk is almost full"}
	sender := &fakeSender{}
	s := New(fs, runner, sender, "/tmp", 0, zerolog.Nop())

	s.runHeartbeat(context.Background())

	if !strings.Contains(sender.lastMessage(), "disk is almost full") {
		t.Fatalf("expected notification with heartbeat response, got %q", sender.lastMessage())
	}
}

func TestRunHeartbeat_NoChecksConfiguredSkipsRunner(t *testing.T) {
	fs := &fakeStore{}
	runner := &fakeRunner{}
	sender := &fakeSender{}
	s := New(fs, runner, sender, "/tmp", 0, zerolog.Nop())

	s.runHeartbeat(context.Background())

	if runner.callCount() != 0 {
		t.Fatal("expected no agent call when there are no heartbeat checks")
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	fs := &fakeStore{}
	runner := &fakeRunner{}
	sender := &fakeSender{}
	s := New(fs, runner, sender, "/tmp", 0, zerolog.Nop())

	s.Start()
	if !s.Running() {
		t.Fatal("expected scheduler to report running after Start")
	}
	s.Start() // no-op, must not deadlock or panic
	s.Stop()
	if s.Running() {
		t.Fatal("expected scheduler to report not running after Stop")
	}
	s.Stop() // no-op, must not deadlock or panic
}
