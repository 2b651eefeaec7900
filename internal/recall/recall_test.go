package recall

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/megobari/megobari/internal/store"
)

type fakeStore struct {
	summaries []*store.ConversationSummary
	persona   *store.Persona
	memories  []*store.Memory
}

func (f *fakeStore) RecentSummaries(ctx context.Context, sessionName string, limit int) ([]*store.ConversationSummary, error) {
	return f.summaries, nil
}

func (f *fakeStore) DefaultPersona(ctx context.Context) (*store.Persona, error) {
	return f.persona, nil
}

func (f *fakeStore) ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*store.Memory, error) {
	return f.memories, nil
}

func TestBuild_ComposesSummariesPersonaAndMemories(t *testing.T) {
	fs := &fakeStore{
		summaries: []*store.ConversationSummary{
			{ShortSummary: "second short", CreatedAt: time.Now()},
			{ShortSummary: "first short", CreatedAt: time.Now().Add(-time.Hour)},
		},
		persona: &store.Persona{
			Name:         "default",
			SystemPrompt: "Be concise",
			MCPServers:   []string{"fs"},
			Skills:       []string{"coding"},
		},
		memories: []*store.Memory{
			{Category: "preferences", Key: "lang", Content: "Go"},
			{Category: "projects", Key: "x", Content: "in progress"},
		},
	}

	res := Build(context.Background(), fs, "sess", 1)

	if !strings.Contains(res.Context, "first short") || !strings.Contains(res.Context, "second short") {
		t.Fatalf("missing summaries in context: %q", res.Context)
	}
	if !strings.Contains(res.Context, "Be concise") {
		t.Fatalf("missing persona prompt in context: %q", res.Context)
	}
	if !strings.Contains(res.Context, "lang: Go") || !strings.Contains(res.Context, "x: in progress") {
		t.Fatalf("missing memory lines in context: %q", res.Context)
	}
	if len(res.PersonaMCPServers) != 1 || res.PersonaMCPServers[0] != "fs" {
		t.Fatalf("persona MCP servers not echoed: %+v", res.PersonaMCPServers)
	}
	if len(res.PersonaSkills) != 1 || res.PersonaSkills[0] != "coding" {
		t.Fatalf("persona skills not echoed: %+v", res.PersonaSkills)
	}
}

func TestBuild_EmptyWhenNothingStored(t *testing.T) {
	res := Build(context.Background(), &fakeStore{}, "sess", 0)
	if res.Context != "" {
		t.Fatalf("expected empty context, got %q", res.Context)
	}
}
