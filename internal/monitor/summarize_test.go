package monitor

import (
	"context"
	"testing"

	"github.com/megobari/megobari/internal/turnengine"
)

type fakeRunner struct {
	response string
	err      error
	prompts  []string
}

func (r *fakeRunner) RunAdHoc(ctx context.Context, sessionName, cwd, prompt string, opts ...turnengine.AdHocOption) (string, error) {
	r.prompts = append(r.prompts, prompt)
	return r.response, r.err
}

func TestSummarizeBaselineEmptyContentShortCircuits(t *testing.T) {
	runner := &fakeRunner{response: "should not be used"}
	summary, err := summarizeBaseline(context.Background(), runner, "/tmp", "blog", "Acme", "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ChangeType != "baseline" {
		t.Fatalf("expected baseline change type, got %q", summary.ChangeType)
	}
	if len(runner.prompts) != 0 {
		t.Fatal("expected runner not to be called for empty content")
	}
}

func TestSummarizeBaselineParsesJSON(t *testing.T) {
	runner := &fakeRunner{response: `{"summary": "Acme shipped v2.0 on Jan 4."}`}
	summary, err := summarizeBaseline(context.Background(), runner, "/tmp", "repo", "Acme", "some content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Summary != "Acme shipped v2.0 on Jan 4." {
		t.Fatalf("unexpected summary: %q", summary.Summary)
	}
	if summary.ChangeType != "baseline" {
		t.Fatalf("expected baseline change type, got %q", summary.ChangeType)
	}
}

func TestSummarizeBaselineStripsFences(t *testing.T) {
	runner := &fakeRunner{response: "```json\n{\"summary\": \"fenced\"}\n```"}
	summary, err := summarizeBaseline(context.Background(), runner, "/tmp", "repo", "Acme", "some content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Summary != "fenced" {
		t.Fatalf("unexpected summary: %q", summary.Summary)
	}
}

func TestSummarizeChangesDefaultsChangeType(t *testing.T) {
	runner := &fakeRunner{response: `{"summary": "Pricing page updated."}`}
	summary, err := summarizeChanges(context.Background(), runner, "/tmp", "Pricing", "pricing", "old", "new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ChangeType != "content_update" {
		t.Fatalf("expected default change_type content_update, got %q", summary.ChangeType)
	}
}

func TestSummarizeChangesPropagatesExplicitChangeType(t *testing.T) {
	runner := &fakeRunner{response: `{"summary": "New pricing tier added.", "change_type": "price_change"}`}
	summary, err := summarizeChanges(context.Background(), runner, "/tmp", "Pricing", "pricing", "old", "new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.ChangeType != "price_change" {
		t.Fatalf("expected price_change, got %q", summary.ChangeType)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"{\"a\":1}":               `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncateChars(t *testing.T) {
	if got := truncateChars("hello", 10); got != "hello" {
		t.Fatalf("expected unchanged short string, got %q", got)
	}
	if got := truncateChars("hello world", 5); got != "hello" {
		t.Fatalf("expected truncation to 5 runes, got %q", got)
	}
}
