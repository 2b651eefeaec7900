package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/transport"
)

// defaultAutonomousMaxTurns is the max_turns value /autonomous on applies.
// Not present in the retrieval pack's filtered session.py; chosen to match
// the original's documented "50 turns" autonomous-mode description.
const defaultAutonomousMaxTurns = 50

// modelAliases maps short names to full model identifiers. Invented to fill
// a gap left by the filtered session.py (see DESIGN.md).
var modelAliases = map[string]string{
	"sonnet": "claude-sonnet-4-5",
	"opus":   "claude-opus-4-1",
	"haiku":  "claude-haiku-4-5",
}

var validEffortLevels = []sessionstore.EffortLevel{
	sessionstore.EffortLow,
	sessionstore.EffortMedium,
	sessionstore.EffortHigh,
	sessionstore.EffortMax,
}

var validThinkingModes = []sessionstore.ThinkingMode{
	sessionstore.ThinkingAdaptive,
	sessionstore.ThinkingEnabled,
	sessionstore.ThinkingDisabled,
}

// registerTuningCommands wires model/effort/thinking/autonomous-mode
// commands. Grounded on handlers/tuning.py.
func registerTuningCommands(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "think",
		Args:        "[mode]",
		Description: "Control extended thinking (adaptive/on/off)",
		Section:     "tuning",
		Handler:     cmdThink(deps),
	})
	r.Register(Definition{
		Name:        "effort",
		Args:        "[level]",
		Description: "Set effort level (low/medium/high/max/off)",
		Section:     "tuning",
		Handler:     cmdEffort(deps),
	})
	r.Register(Definition{
		Name:        "model",
		Args:        "[name]",
		Description: "Switch model (sonnet/opus/haiku/off)",
		Section:     "tuning",
		Handler:     cmdModel(deps),
	})
	r.Register(Definition{
		Name:        "autonomous",
		Args:        "[sub]",
		Description: "Toggle autonomous mode (bypass + max effort + high turns)",
		Section:     "tuning",
		Handler:     cmdAutonomous(deps),
	})
}

func cmdThink(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		if len(args) == 0 {
			budgetInfo := ""
			if session.ThinkingMode == sessionstore.ThinkingEnabled && session.ThinkingBudget != nil {
				budgetInfo = fmt.Sprintf(" (budget: %d tokens)", *session.ThinkingBudget)
			}
			_, err := tc.Reply(ctx, fmt.Sprintf("Thinking: **%s**%s", session.ThinkingMode, budgetInfo), true)
			return err
		}

		mode := strings.ToLower(args[0])
		switch {
		case mode == "on":
			budget := 10000
			if len(args) > 1 {
				v, err := strconv.Atoi(args[1])
				if err != nil {
					_, replyErr := tc.Reply(ctx, "Invalid budget. Use: /think on [budget_tokens]", false)
					return replyErr
				}
				budget = v
			}
			session.ThinkingMode = sessionstore.ThinkingEnabled
			session.ThinkingBudget = &budget
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, fmt.Sprintf("✅ Thinking enabled (budget: %d tokens)", budget), false)
			return err

		case mode == "off":
			session.ThinkingMode = sessionstore.ThinkingDisabled
			session.ThinkingBudget = nil
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, "✅ Thinking disabled", false)
			return err

		case isValidThinkingMode(mode):
			session.ThinkingMode = sessionstore.ThinkingMode(mode)
			if session.ThinkingMode != sessionstore.ThinkingEnabled {
				session.ThinkingBudget = nil
			}
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, fmt.Sprintf("✅ Thinking: %s", mode), false)
			return err

		default:
			_, err := tc.Reply(ctx, "Usage:\n"+
				"/think — show current setting\n"+
				"/think adaptive — let the agent decide (default)\n"+
				"/think on [budget] — enable with optional budget (default 10000)\n"+
				"/think off — disable thinking", false)
			return err
		}
	}
}

func isValidThinkingMode(mode string) bool {
	for _, m := range validThinkingModes {
		if string(m) == mode {
			return true
		}
	}
	return false
}

func cmdEffort(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		if len(args) == 0 {
			level := string(session.EffortLevel)
			if level == "" {
				level = "not set (SDK default)"
			}
			_, err := tc.Reply(ctx, fmt.Sprintf("Effort: **%s**", level), true)
			return err
		}

		level := strings.ToLower(args[0])
		switch {
		case level == "off":
			session.EffortLevel = ""
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, "✅ Effort cleared (using SDK default)", false)
			return err
		case isValidEffortLevel(level):
			session.EffortLevel = sessionstore.EffortLevel(level)
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, fmt.Sprintf("✅ Effort: %s", level), false)
			return err
		default:
			_, err := tc.Reply(ctx, "Usage:\n"+
				"/effort — show current setting\n"+
				"/effort low|medium|high|max — set level\n"+
				"/effort off — clear (use SDK default)", false)
			return err
		}
	}
}

func isValidEffortLevel(level string) bool {
	for _, l := range validEffortLevels {
		if string(l) == level {
			return true
		}
	}
	return false
}

func cmdModel(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		if len(args) == 0 {
			current := session.ModelID
			if current == "" {
				current = "default (SDK decides)"
			}
			names := make([]string, 0, len(modelAliases))
			for k := range modelAliases {
				names = append(names, k)
			}
			sort.Strings(names)
			_, err := tc.Reply(ctx, fmt.Sprintf(
				"**Model:** %s\n\nAvailable: %s\nOr use a full model name.",
				current, strings.Join(names, ", ")), true)
			return err
		}

		model := strings.ToLower(args[0])
		if model == "default" || model == "off" {
			session.ModelID = ""
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, "✅ Model cleared (SDK default)", false)
			return err
		}

		resolved, ok := modelAliases[model]
		if !ok {
			resolved = model
		}
		session.ModelID = resolved
		deps.Sessions.Save()
		display := resolved
		if model != resolved {
			display = fmt.Sprintf("%s -> %s", model, resolved)
		}
		_, err := tc.Reply(ctx, "✅ Model: "+display, false)
		return err
	}
}

func cmdAutonomous(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		if len(args) == 0 {
			isAuto := session.PermissionMode == sessionstore.PermissionBypassPermissions &&
				session.EffortLevel == sessionstore.EffortMax &&
				session.MaxTurns != nil && *session.MaxTurns >= defaultAutonomousMaxTurns
			status := "OFF"
			if isAuto {
				status = "ON"
			}
			maxTurns := "default"
			if session.MaxTurns != nil {
				maxTurns = strconv.Itoa(*session.MaxTurns)
			}
			effort := string(session.EffortLevel)
			if effort == "" {
				effort = "default"
			}
			budget := "unlimited"
			if session.MaxBudgetUSD != nil {
				budget = fmt.Sprintf("$%.2f", *session.MaxBudgetUSD)
			}
			lines := []string{
				fmt.Sprintf("**Autonomous mode: %s**", status),
				fmt.Sprintf("  Permissions: %s", session.PermissionMode),
				fmt.Sprintf("  Effort: %s", effort),
				fmt.Sprintf("  Max turns: %s", maxTurns),
				fmt.Sprintf("  Budget: %s", budget),
			}
			_, err := tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err
		}

		sub := strings.ToLower(args[0])
		switch sub {
		case "on", "true", "1":
			session.PermissionMode = sessionstore.PermissionBypassPermissions
			session.EffortLevel = sessionstore.EffortMax
			turns := defaultAutonomousMaxTurns
			session.MaxTurns = &turns
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, fmt.Sprintf("🚀 Autonomous mode ON\n"+
				"  Permissions: bypassPermissions\n"+
				"  Effort: max\n"+
				"  Max turns: %d", defaultAutonomousMaxTurns), false)
			return err

		case "off", "false", "0":
			session.PermissionMode = sessionstore.PermissionDefault
			session.EffortLevel = ""
			session.MaxTurns = nil
			session.MaxBudgetUSD = nil
			deps.Sessions.Save()
			_, err := tc.Reply(ctx, "✅ Autonomous mode OFF (defaults restored)", false)
			return err

		case "turns":
			if len(args) < 2 {
				maxTurns := "default"
				if session.MaxTurns != nil {
					maxTurns = strconv.Itoa(*session.MaxTurns)
				}
				_, err := tc.Reply(ctx, "Max turns: "+maxTurns, false)
				return err
			}
			val, err := strconv.Atoi(args[1])
			if err != nil || val < 1 {
				_, replyErr := tc.Reply(ctx, "Usage: /autonomous turns <number>", false)
				return replyErr
			}
			session.MaxTurns = &val
			deps.Sessions.Save()
			_, replyErr := tc.Reply(ctx, fmt.Sprintf("✅ Max turns: %d", val), false)
			return replyErr

		case "budget":
			if len(args) < 2 {
				if session.MaxBudgetUSD != nil {
					_, err := tc.Reply(ctx, fmt.Sprintf("Budget: $%.2f", *session.MaxBudgetUSD), false)
					return err
				}
				_, err := tc.Reply(ctx, "Budget: unlimited", false)
				return err
			}
			if strings.ToLower(args[1]) == "off" {
				session.MaxBudgetUSD = nil
				deps.Sessions.Save()
				_, err := tc.Reply(ctx, "✅ Budget limit removed", false)
				return err
			}
			val, err := strconv.ParseFloat(args[1], 64)
			if err != nil || val <= 0 {
				_, replyErr := tc.Reply(ctx, "Usage: /autonomous budget <amount|off>", false)
				return replyErr
			}
			session.MaxBudgetUSD = &val
			deps.Sessions.Save()
			_, replyErr := tc.Reply(ctx, fmt.Sprintf("✅ Budget: $%.2f", val), false)
			return replyErr

		default:
			_, err := tc.Reply(ctx, "Usage:\n"+
				"/autonomous — show current status\n"+
				"/autonomous on — enable (bypass + max effort + 50 turns)\n"+
				"/autonomous off — disable (restore defaults)\n"+
				"/autonomous turns <n> — set max tool turns\n"+
				"/autonomous budget <$|off> — set cost limit per query", false)
			return err
		}
	}
}
