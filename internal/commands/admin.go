package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/megobari/megobari/internal/transport"
)

// helpSectionOrder orders /help's command groups; Section values not listed
// here sort to the end alphabetically.
var helpSectionOrder = []string{"session", "workspace", "tuning", "persona", "usage", "ops", "admin"}

var helpSectionTitles = map[string]string{
	"session":   "Sessions",
	"workspace": "Workspace",
	"tuning":    "Model & tuning",
	"persona":   "Personas & memory",
	"usage":     "Usage & history",
	"ops":       "Scheduling & monitoring",
	"admin":     "Admin",
}

var releaseVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
var pyprojectVersionPattern = regexp.MustCompile(`(?m)^version\s*=\s*"[^"]*"`)

// registerAdminCommands wires help, session-info, devops, and health-check
// commands. Grounded on handlers/admin.py.
func registerAdminCommands(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "help",
		Description: "Show this message",
		Section:     "admin",
		Handler:     cmdHelp(r),
	})
	r.Register(Definition{
		Name:        "current",
		Description: "Show active session info",
		Section:     "admin",
		Handler:     cmdCurrent(deps),
	})
	r.Register(Definition{
		Name:        "restart",
		Description: "Restart the bot process",
		Section:     "admin",
		Handler:     cmdRestart(deps),
	})
	r.Register(Definition{
		Name:        "release",
		Args:        "<version>",
		Description: "Bump version, tag & publish to PyPI",
		Section:     "admin",
		Handler:     cmdRelease(deps),
	})
	r.Register(Definition{
		Name:        "doctor",
		Description: "Run health checks",
		Section:     "admin",
		Handler:     cmdDoctor(deps),
	})
	r.Register(Definition{
		Name:        "dashboard",
		Args:        "[add <name>|enable|disable|revoke <id>]",
		Description: "Manage dashboard API tokens",
		Section:     "admin",
		Handler:     cmdDashboard(deps),
	})
}

func cmdDashboard(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			return dashboardList(ctx, tc, deps)
		}

		switch strings.ToLower(args[0]) {
		case "add":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /dashboard add <name>", false)
				return err
			}
			return dashboardAdd(ctx, tc, deps, strings.Join(args[1:], " "))
		case "disable":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /dashboard disable <id>", false)
				return err
			}
			return dashboardToggle(ctx, tc, deps, args[1], false)
		case "enable":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /dashboard enable <id>", false)
				return err
			}
			return dashboardToggle(ctx, tc, deps, args[1], true)
		case "revoke":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /dashboard revoke <id>", false)
				return err
			}
			return dashboardRevoke(ctx, tc, deps, args[1])
		default:
			_, err := tc.Reply(ctx, "Unknown subcommand. Use: add, disable, enable, revoke", false)
			return err
		}
	}
}

func dashboardList(ctx context.Context, tc transport.Context, deps *Deps) error {
	tokens, err := deps.Store.ListDashboardTokens(ctx)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to list dashboard tokens.", false)
		return replyErr
	}
	if len(tokens) == 0 {
		_, err := tc.Reply(ctx, "No dashboard tokens.\nCreate one with: /dashboard add <name>", false)
		return err
	}

	lines := []string{"**Dashboard Tokens**", ""}
	for _, t := range tokens {
		status := "enabled"
		if !t.Enabled {
			status = "disabled"
		}
		used := "never"
		if t.LastUsedAt != nil {
			used = t.LastUsedAt.Format("2006-01-02 15:04")
		}
		lines = append(lines, fmt.Sprintf("**#%d** %s (`%s`)", t.ID, t.Name, t.ExternalID))
		lines = append(lines, fmt.Sprintf("  Prefix: `%s...` | Status: %s | Last used: %s", t.TokenPrefix, status, used))
	}
	_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
	return err
}

func dashboardAdd(ctx context.Context, tc transport.Context, deps *Deps, name string) error {
	token, err := newDashboardToken()
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to generate token.", false)
		return replyErr
	}

	dt, err := deps.Store.CreateDashboardToken(ctx, name, token)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to create dashboard token.", false)
		return replyErr
	}

	msg := fmt.Sprintf("**New dashboard token created**\n\nName: %s\nID: #%d (`%s`)\n\n`%s`\n\n"+
		"Copy this token now — it won't be shown again.", name, dt.ID, dt.ExternalID, token)
	_, err = tc.Reply(ctx, msg, true)
	return err
}

func newDashboardToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func dashboardToggle(ctx context.Context, tc transport.Context, deps *Deps, idStr string, enabled bool) error {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Token ID must be a number.", false)
		return replyErr
	}
	dt, err := deps.Store.ToggleDashboardToken(ctx, id, enabled)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to update dashboard token.", false)
		return replyErr
	}
	if dt == nil {
		_, err := tc.Reply(ctx, fmt.Sprintf("Token #%d not found.", id), false)
		return err
	}
	action := "disabled"
	if enabled {
		action = "enabled"
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("Token #%d (%s) %s.", dt.ID, dt.Name, action), false)
	return err
}

func dashboardRevoke(ctx context.Context, tc transport.Context, deps *Deps, idStr string) error {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Token ID must be a number.", false)
		return replyErr
	}
	deleted, err := deps.Store.DeleteDashboardToken(ctx, id)
	if err != nil {
		_, replyErr := tc.Reply(ctx, "Failed to revoke dashboard token.", false)
		return replyErr
	}
	if !deleted {
		_, err := tc.Reply(ctx, fmt.Sprintf("Token #%d not found.", id), false)
		return err
	}
	_, err = tc.Reply(ctx, fmt.Sprintf("Token #%d permanently revoked.", id), false)
	return err
}

func cmdHelp(r *Registry) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		bySection := make(map[string][]Definition)
		for _, def := range r.All() {
			bySection[def.Section] = append(bySection[def.Section], def)
		}

		seen := make(map[string]bool, len(helpSectionOrder))
		var lines []string
		for _, section := range helpSectionOrder {
			defs := bySection[section]
			if len(defs) == 0 {
				continue
			}
			seen[section] = true
			lines = append(lines, "**"+helpSectionTitles[section]+":**")
			for _, def := range defs {
				lines = append(lines, helpLine(def))
			}
			lines = append(lines, "")
		}
		var rest []string
		for section, defs := range bySection {
			if seen[section] || len(defs) == 0 {
				continue
			}
			rest = append(rest, section)
		}
		sort.Strings(rest)
		for _, section := range rest {
			lines = append(lines, "**"+section+":**")
			for _, def := range bySection[section] {
				lines = append(lines, helpLine(def))
			}
			lines = append(lines, "")
		}

		_, err := tc.Reply(ctx, strings.TrimRight(strings.Join(lines, "\n"), "\n"), true)
		return err
	}
}

func helpLine(def Definition) string {
	cmd := "/" + def.Name
	if def.Args != "" {
		cmd += " `" + def.Args + "`"
	}
	return fmt.Sprintf("%s — %s", cmd, def.Description)
}

func cmdCurrent(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		session := deps.Sessions.Current()
		if session == nil {
			_, err := tc.Reply(ctx, "No active session. Use /new <name> first.", false)
			return err
		}

		thinking := string(session.ThinkingMode)
		if session.ThinkingMode == "enabled" && session.ThinkingBudget != nil {
			thinking = fmt.Sprintf("enabled (%d tokens)", *session.ThinkingBudget)
		}
		model := session.ModelID
		if model == "" {
			model = "default"
		}
		effort := string(session.EffortLevel)
		if effort == "" {
			effort = "default"
		}
		streaming := "off"
		if session.Streaming {
			streaming = "on"
		}
		hasContext := "no"
		if session.AgentThreadID != "" {
			hasContext = "yes"
		}

		lines := []string{
			fmt.Sprintf("**Session:** %s", session.Name),
			fmt.Sprintf("**Working dir:** %s", session.Cwd),
		}
		if len(session.Dirs) > 0 {
			lines = append(lines, fmt.Sprintf("**Extra dirs:** %d (/dirs to list)", len(session.Dirs)))
		}
		lines = append(lines,
			fmt.Sprintf("**Streaming:** %s", streaming),
			fmt.Sprintf("**Permissions:** %s", session.PermissionMode),
			fmt.Sprintf("**Model:** %s", model),
			fmt.Sprintf("**Thinking:** %s", thinking),
			fmt.Sprintf("**Effort:** %s", effort),
			fmt.Sprintf("**Has context:** %s", hasContext),
			fmt.Sprintf("**Created:** %s", session.CreatedAt.Format("2006-01-02 15:04")),
			fmt.Sprintf("**Last used:** %s", session.LastUsedAt.Format("2006-01-02 15:04")),
		)

		_, err := tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}
}

func cmdRestart(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		return deps.Executor.Restart(ctx, tc)
	}
}

func cmdRelease(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			_, err := tc.Reply(ctx, "Usage: /release <version>\nExample: /release 0.2.0", false)
			return err
		}
		version := strings.TrimPrefix(args[0], "v")
		if !releaseVersionPattern.MatchString(version) {
			_, err := tc.Reply(ctx, fmt.Sprintf("Invalid version format: %s\nExpected: X.Y.Z", version), false)
			return err
		}
		tag := "v" + version

		projectRoot := deps.Config.WorkingDir
		if session := deps.Sessions.Current(); session != nil {
			projectRoot = session.Cwd
		}
		pyproject := filepath.Join(projectRoot, "pyproject.toml")
		if _, err := os.Stat(pyproject); err != nil {
			_, replyErr := tc.Reply(ctx, fmt.Sprintf("pyproject.toml not found in %s", projectRoot), false)
			return replyErr
		}

		if _, err := tc.Reply(ctx, fmt.Sprintf("📦 Releasing %s...", tag), false); err != nil {
			return err
		}

		content, err := os.ReadFile(pyproject)
		if err != nil {
			_, replyErr := tc.Reply(ctx, fmt.Sprintf("❌ Release failed:\n%v", err), false)
			return replyErr
		}
		newContent := pyprojectVersionPattern.ReplaceAllString(string(content), fmt.Sprintf(`version = "%s"`, version))
		if newContent == string(content) {
			_, replyErr := tc.Reply(ctx, "⚠️ Could not find version field in pyproject.toml", false)
			return replyErr
		}
		if err := os.WriteFile(pyproject, []byte(newContent), 0o644); err != nil {
			_, replyErr := tc.Reply(ctx, fmt.Sprintf("❌ Release failed:\n%v", err), false)
			return replyErr
		}

		steps := [][]string{
			{"git", "add", "pyproject.toml"},
			{"git", "commit", "-m", "Release " + tag},
			{"git", "tag", tag},
			{"git", "push"},
			{"git", "push", "--tags"},
		}
		for _, stepArgs := range steps {
			cmd := exec.CommandContext(ctx, stepArgs[0], stepArgs[1:]...)
			cmd.Dir = projectRoot
			if out, err := cmd.CombinedOutput(); err != nil {
				_, replyErr := tc.Reply(ctx, fmt.Sprintf("❌ Release failed:\n%s", strings.TrimSpace(string(out))), false)
				return replyErr
			}
		}

		_, err = tc.Reply(ctx, fmt.Sprintf("✅ Released %s\n"+
			"• Version bumped to %s\n"+
			"• Tag %s pushed\n"+
			"• GitHub Actions will publish to PyPI", tag, version, tag), false)
		return err
	}
}

func cmdDoctor(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		var checks []string

		if cliPath, err := exec.LookPath(deps.Config.AgentCommand); err == nil {
			checks = append(checks, fmt.Sprintf("✅ Agent CLI: %s", cliPath))
		} else {
			checks = append(checks, fmt.Sprintf("❌ Agent CLI: %q not found in PATH", deps.Config.AgentCommand))
		}

		allSessions := deps.Sessions.ListAll()
		withContext := 0
		for _, s := range allSessions {
			if s.AgentThreadID != "" {
				withContext++
			}
		}
		checks = append(checks, fmt.Sprintf("📋 Sessions: %d total, %d with context", len(allSessions), withContext))

		sessionsFile := filepath.Join(deps.Config.SessionsDir(), "sessions.json")
		if info, err := os.Stat(sessionsFile); err == nil {
			checks = append(checks, fmt.Sprintf("💾 Sessions file: %s", humanizeBytes(info.Size())))
		} else {
			checks = append(checks, "💾 Sessions file: not found")
		}

		if health, err := deps.Store.Health(ctx); err == nil {
			checks = append(checks, fmt.Sprintf("🗄 DB: %d users, %d memories, %d summaries, %d messages",
				health.Users, health.Memories, health.Summaries, health.Messages))
		} else {
			checks = append(checks, fmt.Sprintf("❌ DB: %v", err))
		}

		if session := deps.Sessions.Current(); session != nil {
			effort := string(session.EffortLevel)
			if effort == "" {
				effort = "default"
			}
			checks = append(checks, fmt.Sprintf("🔧 Active session: %s (thinking=%s, effort=%s)",
				session.Name, session.ThinkingMode, effort))
		}

		_, err := tc.Reply(ctx, strings.Join(checks, "\n"), false)
		return err
	}
}

func humanizeBytes(n int64) string {
	if n < 1024 {
		return fmt.Sprintf("%dB", n)
	}
	return fmt.Sprintf("%.1fKB", float64(n)/1024)
}
