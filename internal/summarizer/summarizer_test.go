package summarizer

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/agentinvoker"
	"github.com/megobari/megobari/internal/store"
)

type fakeStore struct {
	messages  []*store.Message
	committed *store.ConversationSummary
	markedIDs []int64
}

func (f *fakeStore) UnsummarizedCount(ctx context.Context, sessionName string) (int, error) {
	return len(f.messages), nil
}

func (f *fakeStore) UnsummarizedMessages(ctx context.Context, sessionName string) ([]*store.Message, error) {
	return f.messages, nil
}

func (f *fakeStore) CommitSummary(ctx context.Context, sum store.ConversationSummary, messageIDs []int64) (*store.ConversationSummary, error) {
	sum.ID = 1
	f.committed = &sum
	f.markedIDs = messageIDs
	return &sum, nil
}

func makeMessages(n int) []*store.Message {
	out := make([]*store.Message, n)
	for i := range out {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out[i] = &store.Message{ID: int64(i + 1), SessionName: "default", Role: role, Content: fmt.Sprintf("message %d", i)}
	}
	return out
}

func TestCheckAndSummarize_BelowThresholdSkips(t *testing.T) {
	fs := &fakeStore{messages: makeMessages(3)}
	s := New(fs, func(ctx context.Context, prompt string) (string, error) {
		t.Fatal("send should not be called below threshold")
		return "", nil
	}, zerolog.Nop())

	ok, err := s.CheckAndSummarize(context.Background(), "default", 42)
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
	if fs.committed != nil {
		t.Fatal("expected no summary committed")
	}
}

func TestCheckAndSummarize_CommitsAndMarksMessages(t *testing.T) {
	fs := &fakeStore{messages: makeMessages(25)}
	s := New(fs, func(ctx context.Context, prompt string) (string, error) {
		return "Fixed the bug\n---FULL---\nWe diagnosed and fixed a race condition in the worker pool.", nil
	}, zerolog.Nop())

	ok, err := s.CheckAndSummarize(context.Background(), "default", 42)
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
	if fs.committed == nil {
		t.Fatal("expected a summary to be committed")
	}
	if fs.committed.ShortSummary != "Fixed the bug" {
		t.Fatalf("unexpected short summary: %q", fs.committed.ShortSummary)
	}
	if len(fs.markedIDs) != 25 {
		t.Fatalf("expected all 25 message ids marked, got %d", len(fs.markedIDs))
	}
}

func TestCheckAndSummarize_SendFailureLeavesMessagesUnsummarized(t *testing.T) {
	fs := &fakeStore{messages: makeMessages(25)}
	s := New(fs, func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("agent unreachable")
	}, zerolog.Nop())

	ok, err := s.CheckAndSummarize(context.Background(), "default", 42)
	if err != nil {
		t.Fatalf("expected nil error on send failure (retry later), got %v", err)
	}
	if ok {
		t.Fatal("expected no summary to be reported created")
	}
	if fs.committed != nil {
		t.Fatal("expected no commit on send failure")
	}
}

func TestParseSummary_WithDelimiter(t *testing.T) {
	short, full := parseSummary("Short one\n---FULL---\nLonger explanation here.")
	if short != "Short one" {
		t.Fatalf("unexpected short: %q", short)
	}
	if full != "Longer explanation here." {
		t.Fatalf("unexpected full: %q", full)
	}
}

func TestParseSummary_NoDelimiterFallsBack(t *testing.T) {
	raw := ""
	for i := 0; i < 30; i++ {
		raw += "word "
	}
	short, full := parseSummary(raw)
	if full != strings.TrimSpace(raw) {
		t.Fatalf("expected full to equal raw (trimmed), got %q", full)
	}
	if len(short) == 0 {
		t.Fatal("expected a derived short summary")
	}
}

func TestFormatMessages_TruncatesLongContent(t *testing.T) {
	long := make([]byte, maxMessageChars+500)
	for i := range long {
		long[i] = 'a'
	}
	msgs := []*store.Message{{ID: 1, Role: "assistant", Content: string(long)}}
	formatted := formatMessages(msgs)
	if !strings.Contains(formatted, "[truncated]") {
		t.Fatal("expected truncation marker in formatted output")
	}
}

func TestNewAgentSender_ReturnsResultText(t *testing.T) {
	t.Setenv("GO_WANT_SUMMARIZER_HELPER", "1")
	inv := agentinvoker.New(os.Args[0], []string{"-test.run=TestSummarizer_HelperProcess", "--"}, zerolog.Nop())
	send := NewAgentSender(inv, t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := send(ctx, "summarize this")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if text != "a short summary\n---FULL---\na full summary" {
		t.Fatalf("unexpected result text: %q", text)
	}
}

// TestSummarizer_HelperProcess is the os.Args[0] re-exec subprocess
// entry point, reused from the agentinvoker/turnengine test pattern.
func TestSummarizer_HelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_SUMMARIZER_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	line := func(s string) {
		fmt.Fprintln(w, s)
		w.Flush()
	}

	line(`{"type":"system","subtype":"init","session_id":"summary-thread"}`)
	line(`{"type":"result","result":"a short summary\n---FULL---\na full summary","session_id":"summary-thread","total_cost_usd":0.001,"num_turns":1,"duration_api_ms":100,"usage":{"input_tokens":5,"output_tokens":5}}`)
}
