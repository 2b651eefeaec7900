package turnengine

import (
	"strings"

	"github.com/megobari/megobari/internal/agentinvoker"
	"github.com/megobari/megobari/internal/recall"
	"github.com/megobari/megobari/internal/sessionstore"
)

// buildSystemPrompt assembles the per-turn system prompt: the base prompt,
// the session's extra directories (if any), then the recall context.
// Grounded 1:1 on claude_bridge.py's _build_system_prompt.
func buildSystemPrompt(session *sessionstore.Session, recallContext string) string {
	parts := []string{agentinvoker.BaseSystemPrompt}
	if len(session.Dirs) > 0 {
		var dirLines []string
		for _, d := range session.Dirs {
			dirLines = append(dirLines, "- "+d)
		}
		parts = append(parts, "You also have access to these additional directories "+
			"(use absolute paths to work with files in them):\n"+strings.Join(dirLines, "\n"))
	}
	if recallContext != "" {
		parts = append(parts, recallContext)
	}
	return strings.Join(parts, "\n\n")
}

// buildRequest translates a Session plus recall metadata into an Agent
// Invoker Request. When resume is false, any agent_thread_id on the
// session is omitted (used for the resume-once-then-fresh retry).
func buildRequest(session *sessionstore.Session, rec recall.Result, prompt string, resume bool) agentinvoker.Request {
	req := agentinvoker.Request{
		Prompt:         prompt,
		SystemPrompt:   buildSystemPrompt(session, rec.Context),
		Cwd:            session.Cwd,
		ExtraDirs:      session.Dirs,
		PermissionMode: string(session.PermissionMode),
		ModelID:        session.ModelID,
		ThinkingMode:   string(session.ThinkingMode),
		EffortLevel:    string(session.EffortLevel),
		MCPServers:     rec.PersonaMCPServers,
		Skills:         rec.PersonaSkills,
	}
	if session.ThinkingBudget != nil {
		req.ThinkingBudget = *session.ThinkingBudget
	}
	if session.MaxTurns != nil {
		req.MaxTurns = *session.MaxTurns
	}
	if session.MaxBudgetUSD != nil {
		req.MaxBudgetUSD = *session.MaxBudgetUSD
	}
	if resume && session.AgentThreadID != "" {
		req.ResumeThreadID = session.AgentThreadID
	}
	return req
}
