// Package recall builds the context block the Turn Engine prepends to a
// fresh-session prompt: recent summaries, the default persona, and known
// memories. Grounded 1:1 on recall.py's build_recall_context.
package recall

import (
	"context"
	"fmt"
	"strings"

	"github.com/megobari/megobari/internal/store"
)

const (
	maxSummaries = 3
	maxMemories  = 20
)

// Store is the subset of *store.Store the Recall Builder reads.
type Store interface {
	RecentSummaries(ctx context.Context, sessionName string, limit int) ([]*store.ConversationSummary, error)
	DefaultPersona(ctx context.Context) (*store.Persona, error)
	ListMemories(ctx context.Context, userID int64, category string, limit int) ([]*store.Memory, error)
}

// Result is the assembled recall context plus the persona metadata the
// Turn Engine feeds into the Agent Invoker's Request (skills/MCP servers).
type Result struct {
	Context             string
	PersonaSystemPrompt string
	PersonaMCPServers   []string
	PersonaSkills       []string
}

// Build assembles a Result for sessionName. userID is 0 when unknown (no
// per-user memory filtering). Any Store error is swallowed: recall is
// best-effort, so a failure here must never stop a turn.
func Build(ctx context.Context, st Store, sessionName string, userID int64) Result {
	var res Result
	var parts []string

	if summaries, err := st.RecentSummaries(ctx, sessionName, maxSummaries); err == nil && len(summaries) > 0 {
		lines := []string{"Previous conversation summaries for this session:"}
		for i := len(summaries) - 1; i >= 0; i-- { // oldest first
			cs := summaries[i]
			ts := "?"
			if !cs.CreatedAt.IsZero() {
				ts = cs.CreatedAt.Format("2006-01-02 15:04")
			}
			text := cs.ShortSummary
			if text == "" {
				text = cs.Summary
			}
			lines = append(lines, fmt.Sprintf("[%s] %s", ts, text))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	if persona, err := st.DefaultPersona(ctx); err == nil && persona != nil {
		var personaParts []string
		if persona.SystemPrompt != "" {
			res.PersonaSystemPrompt = persona.SystemPrompt
			personaParts = append(personaParts, persona.SystemPrompt)
		}
		if len(persona.Skills) > 0 {
			res.PersonaSkills = persona.Skills
			personaParts = append(personaParts, "Prioritize these skills: "+strings.Join(persona.Skills, ", "))
		}
		if len(persona.MCPServers) > 0 {
			res.PersonaMCPServers = persona.MCPServers
			personaParts = append(personaParts, "Active MCP integrations: "+strings.Join(persona.MCPServers, ", "))
		}
		if len(personaParts) > 0 {
			parts = append(parts, fmt.Sprintf("Active persona (%s): %s", persona.Name, strings.Join(personaParts, " | ")))
		}
	}

	if memories, err := st.ListMemories(ctx, userID, "", maxMemories); err == nil && len(memories) > 0 {
		lines := []string{"Known facts and preferences:"}
		for _, m := range memories {
			lines = append(lines, fmt.Sprintf("- [%s] %s: %s", m.Category, m.Key, m.Content))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}

	res.Context = strings.Join(parts, "\n\n")
	return res
}
