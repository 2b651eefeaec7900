package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store"
)

func TestReportKeySlugifies(t *testing.T) {
	if got := reportKey("AI Coding Tools"); got != "ai_coding_tools" {
		t.Errorf("got %q", got)
	}
	if got := reportKey("Foo/Bar: Baz!"); got != "foobar_baz" {
		t.Errorf("got %q", got)
	}
}

func TestSaveAndLoadReportRoundTrips(t *testing.T) {
	dir := t.TempDir()
	e := New(newFakeMonitorStore(), &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{}}, &fakeRunner{}, "/tmp", dir, zerolog.Nop())

	if err := e.saveReport("Competitors", "# Report\n\ncontent here"); err != nil {
		t.Fatalf("unexpected error saving report: %v", err)
	}

	loaded, err := e.loadReport("Competitors")
	if err != nil {
		t.Fatalf("unexpected error loading report: %v", err)
	}
	if !strings.Contains(loaded, "content here") {
		t.Fatalf("loaded report missing expected content: %q", loaded)
	}

	if _, err := os.Stat(filepath.Join(dir, "competitors.md")); err != nil {
		t.Fatalf("expected report file on disk: %v", err)
	}
}

func TestLoadReportFallsBackToFirstAvailable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "aaa_topic.md"), []byte("first report"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "zzz_topic.md"), []byte("last report"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	e := New(newFakeMonitorStore(), &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{}}, &fakeRunner{}, "/tmp", dir, zerolog.Nop())

	loaded, err := e.loadReport("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != "first report" {
		t.Fatalf("expected alphabetically-first report, got %q", loaded)
	}
}

func TestGenerateReportNoResources(t *testing.T) {
	dir := t.TempDir()
	e := New(newFakeMonitorStore(), &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{}}, &fakeRunner{}, "/tmp", dir, zerolog.Nop())

	report, err := e.GenerateReport(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report != "No resources to report on." {
		t.Fatalf("unexpected report: %q", report)
	}
}

func TestGenerateReportSynthesizesAndSaves(t *testing.T) {
	dir := t.TempDir()
	st := newFakeMonitorStore()
	st.topics["competitors"] = &store.MonitorTopic{ID: 1, Name: "competitors", Enabled: true}
	st.entities["Acme"] = &store.MonitorEntity{ID: 1, TopicID: 1, Name: "Acme", URL: "https://acme.test"}
	st.resources[1] = &store.MonitorResource{ID: 1, TopicID: 1, EntityID: 1, Name: "Acme Pricing", URL: "https://acme.test/pricing", ResourceType: "pricing", Enabled: true}
	st.snapshots[1] = []*store.MonitorSnapshot{{ID: 1, ResourceID: 1, ContentMarkdown: "Starter $10/mo, Pro $30/mo."}}

	runner := &fakeRunner{response: "# Competitor Report\n\nAcme charges $10-$30/mo."}
	e := New(st, &fakeFetcher{seq: map[int64]int{}, byURL: map[string][]string{}}, runner, "/tmp", dir, zerolog.Nop())

	report, err := e.GenerateReport(context.Background(), "competitors")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(report, "Competitor Report") {
		t.Fatalf("unexpected report content: %q", report)
	}
	if len(runner.prompts) != 1 {
		t.Fatalf("expected exactly one agent call, got %d", len(runner.prompts))
	}
	if !strings.Contains(runner.prompts[0], "Acme Pricing") {
		t.Fatal("expected prompt to include the resource block")
	}

	if _, err := os.Stat(filepath.Join(dir, "competitors.md")); err != nil {
		t.Fatalf("expected report saved to disk: %v", err)
	}
}
