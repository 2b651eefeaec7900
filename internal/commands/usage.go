package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/tokencount"
	"github.com/megobari/megobari/internal/transport"
)

const (
	historyMessagePreview    = 100
	historyAllMessagePreview = 80
)

// registerUsageCommands wires cost tracking, context inspection, history
// browsing, and compaction. Grounded on handlers/usage.py.
func registerUsageCommands(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "usage",
		Args:        "[all]",
		Description: "Show session cost and stats",
		Section:     "usage",
		Handler:     cmdUsage(deps),
	})
	r.Register(Definition{
		Name:        "compact",
		Description: "Summarize and reset context",
		Section:     "usage",
		Handler:     cmdCompact(deps),
	})
	r.Register(Definition{
		Name:        "context",
		Description: "Show token usage and session config",
		Section:     "usage",
		Handler:     cmdContext(deps),
	})
	r.Register(Definition{
		Name:        "history",
		Args:        "[all|search <query>|stats]",
		Description: "Browse past conversations",
		Section:     "usage",
		Handler:     cmdHistory(deps),
	})
}

func cmdUsage(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		if len(args) > 0 && strings.ToLower(args[0]) == "all" {
			total, err := deps.Store.TotalUsage(ctx)
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to read usage from DB.", false)
				return replyErr
			}
			if total.QueryCount == 0 {
				_, err := tc.Reply(ctx, "No usage recorded yet.", false)
				return err
			}
			lines := []string{
				"**All-time usage:**",
				fmt.Sprintf("**Cost:** $%.4f", total.TotalCostUSD),
				fmt.Sprintf("**Turns:** %d (%d queries)", total.TotalTurns, total.QueryCount),
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err
		}

		lines := []string{fmt.Sprintf("**Session:** %s", session.Name)}

		su := deps.Engine.SessionUsage(session.Name)
		dbUsage, dbErr := deps.Store.SessionUsageTotals(ctx, session.Name)
		if dbErr != nil {
			dbUsage = nil
		}

		haveRun := su.NumTurns > 0
		if haveRun {
			durationS := float64(su.DurationMS) / 1000
			lines = append(lines, "", "**This run:**",
				fmt.Sprintf("  Cost: $%.4f", su.CostUSD),
				fmt.Sprintf("  Turns: %d", su.NumTurns),
				fmt.Sprintf("  API time: %.1fs", durationS))
		}

		haveDB := dbUsage != nil && dbUsage.QueryCount > 0
		if haveDB {
			lines = append(lines, "", "**All-time (this session):**",
				fmt.Sprintf("  Cost: $%.4f", dbUsage.TotalCostUSD),
				fmt.Sprintf("  Turns: %d (%d queries)", dbUsage.TotalTurns, dbUsage.QueryCount))
		}

		if !haveRun && !haveDB {
			_, err := tc.Reply(ctx, "No usage recorded yet for this session.", false)
			return err
		}

		if pending, err := deps.Store.UnsummarizedMessages(ctx, session.Name); err == nil && len(pending) > 0 {
			model := session.ModelID
			if model == "" {
				model = "default"
			}
			estTokens := 0
			for _, m := range pending {
				estTokens += tokencount.Estimate(m.Content, model)
			}
			lines = append(lines, "", fmt.Sprintf("**Pending context:** ~%d tokens (%d unsummarized messages)", estTokens, len(pending)))
		}

		_, err := tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}
}

const compactSummaryPrompt = "Summarize our conversation. Produce two parts separated by the " +
	"exact delimiter '---FULL---' on its own line:\n" +
	"1. First, a SHORT one-line summary (max 150 chars) capturing the essence.\n" +
	"2. Then '---FULL---'\n" +
	"3. Then a FULL summary with bullet points covering decisions made, " +
	"tasks completed, and any ongoing work."

func cmdCompact(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}
		if session.AgentThreadID == "" {
			_, err := tc.Reply(ctx, "No active context to compact.", false)
			return err
		}

		_ = tc.SendTyping(ctx)

		response, err := deps.Engine.RunAdHoc(ctx, session.Name, session.Cwd, compactSummaryPrompt)
		if err != nil {
			_, replyErr := tc.Reply(ctx, "Failed to summarize: "+err.Error(), false)
			return replyErr
		}

		shortSummary, fullSummary := parseCompactSummary(response)

		deps.Sessions.SetAgentThread(session.Name, "")
		deps.Sessions.Save()

		if _, err := deps.Store.CommitSummary(ctx, store.ConversationSummary{
			SessionName:  session.Name,
			UserID:       tc.UserID(),
			Summary:      fullSummary,
			ShortSummary: shortSummary,
			MessageCount: 0,
			IsMilestone:  true,
		}, nil); err != nil {
			deps.Log.Warn().Err(err).Msg("failed to save compact summary")
		}

		msg := fmt.Sprintf("📦 Context compacted.\n\n**Summary:**\n%s", fullSummary)
		_, err = tc.Reply(ctx, msg, true)
		return err
	}
}

func parseCompactSummary(text string) (short, full string) {
	const delim = "---FULL---"
	idx := strings.Index(text, delim)
	if idx == -1 {
		return strings.TrimSpace(text), strings.TrimSpace(text)
	}
	short = strings.TrimSpace(text[:idx])
	full = strings.TrimSpace(text[idx+len(delim):])
	if full == "" {
		full = short
	}
	return short, full
}

func cmdContext(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		su := deps.Engine.SessionUsage(session.Name)
		dbUsage, dbErr := deps.Store.SessionUsageTotals(ctx, session.Name)
		if dbErr != nil {
			dbUsage = nil
		}

		lines := []string{fmt.Sprintf("**Context info for:** %s", session.Name)}

		haveRun := su.InputTokens > 0 || su.OutputTokens > 0
		if haveRun {
			lines = append(lines, "", "**This run:**",
				fmt.Sprintf("  Input tokens: %d", su.InputTokens),
				fmt.Sprintf("  Output tokens: %d", su.OutputTokens),
				fmt.Sprintf("  Total tokens: %d", su.InputTokens+su.OutputTokens))
		}

		haveDB := dbUsage != nil && dbUsage.QueryCount > 0
		if haveDB {
			dbTotal := dbUsage.TotalInputTok + dbUsage.TotalOutputTok
			lines = append(lines, "", "**All-time (this session):**",
				fmt.Sprintf("  Input tokens: %d", dbUsage.TotalInputTok),
				fmt.Sprintf("  Output tokens: %d", dbUsage.TotalOutputTok),
				fmt.Sprintf("  Total tokens: %d", dbTotal),
				fmt.Sprintf("  Queries: %d", dbUsage.QueryCount))
		}

		if !haveRun && !haveDB {
			lines = append(lines, "", "No token data recorded yet.")
		}

		model := session.ModelID
		if model == "" {
			model = "default"
		}

		if pending, err := deps.Store.UnsummarizedMessages(ctx, session.Name); err == nil && len(pending) > 0 {
			estTokens := 0
			for _, m := range pending {
				estTokens += tokencount.Estimate(m.Content, model)
			}
			lines = append(lines, "", "**Pending (unsummarized):**",
				fmt.Sprintf("  Messages: %d", len(pending)),
				fmt.Sprintf("  Estimated tokens: ~%d", estTokens))
		}

		effort := string(session.EffortLevel)
		if effort == "" {
			effort = "default"
		}
		hasContext := "no"
		if session.AgentThreadID != "" {
			hasContext = "yes"
		}
		lines = append(lines, "", "**Session config:**",
			fmt.Sprintf("  Model: %s", model),
			fmt.Sprintf("  Thinking: %s", session.ThinkingMode),
			fmt.Sprintf("  Effort: %s", effort),
			fmt.Sprintf("  Has context: %s", hasContext))

		_, err := tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}
}

func cmdHistory(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()

		if len(args) == 0 {
			if session == nil {
				_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
				return err
			}
			msgs, err := deps.Store.RecentMessages(ctx, session.Name, 10)
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to read history from DB.", false)
				return replyErr
			}
			if len(msgs) == 0 {
				_, err := tc.Reply(ctx, "No messages recorded for this session yet.", false)
				return err
			}
			lines := []string{fmt.Sprintf("**Recent messages (%s):**", session.Name), ""}
			for _, m := range msgs {
				lines = append(lines, formatHistoryLine(m, historyMessagePreview, "15:04", false))
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err
		}

		switch strings.ToLower(args[0]) {
		case "all":
			msgs, err := deps.Store.RecentMessagesAll(ctx, 15)
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to read history from DB.", false)
				return replyErr
			}
			if len(msgs) == 0 {
				_, err := tc.Reply(ctx, "No messages recorded yet.", false)
				return err
			}
			lines := []string{"**Recent messages (all sessions):**", ""}
			for _, m := range msgs {
				lines = append(lines, formatHistoryLine(m, historyAllMessagePreview, "01-02 15:04", true))
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err

		case "search":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /history search <query>", false)
				return err
			}
			query := strings.Join(args[1:], " ")
			msgs, err := deps.Store.SearchMessages(ctx, query, 10)
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to search history.", false)
				return replyErr
			}
			if len(msgs) == 0 {
				_, err := tc.Reply(ctx, fmt.Sprintf("No messages matching '%s'.", query), false)
				return err
			}
			lines := []string{fmt.Sprintf("**Search results for '%s':**", query), ""}
			for _, m := range msgs {
				lines = append(lines, formatHistoryLine(m, historyMessagePreview, "01-02 15:04", true))
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err

		case "stats":
			stats, err := deps.Store.MessageStatsBySession(ctx, 10)
			if err != nil {
				_, replyErr := tc.Reply(ctx, "Failed to read history stats.", false)
				return replyErr
			}
			if len(stats) == 0 {
				_, err := tc.Reply(ctx, "No messages recorded yet.", false)
				return err
			}
			lines := []string{"**Message stats by session:**", ""}
			activeName := ""
			if session != nil {
				activeName = session.Name
			}
			for _, r := range stats {
				marker := ""
				if r.SessionName == activeName {
					marker = " ◂"
				}
				lines = append(lines, fmt.Sprintf("  %s: %d messages%s", r.SessionName, r.Count, marker))
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err

		default:
			_, err := tc.Reply(ctx, "Usage:\n"+
				"/history — recent messages for current session\n"+
				"/history all — recent across all sessions\n"+
				"/history search <query> — search message content\n"+
				"/history stats — message counts by session", false)
			return err
		}
	}
}

func formatHistoryLine(m *store.Message, previewLen int, tsFormat string, withSession bool) string {
	ts := m.CreatedAt.Format(tsFormat)
	roleIcon := "🤖"
	if m.Role == "user" {
		roleIcon = "👤"
	}
	preview := m.Content
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}
	if withSession {
		return fmt.Sprintf("%s %s [%s] %s", roleIcon, ts, m.SessionName, preview)
	}
	return fmt.Sprintf("%s %s %s", roleIcon, ts, preview)
}
