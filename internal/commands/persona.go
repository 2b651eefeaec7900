package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/megobari/megobari/internal/mcpconfig"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/transport"
)

const summaryListLimit = 1000

// registerPersonaCommands wires persona, MCP/skills discovery, memory, and
// conversation-summary commands. Grounded on handlers/persona.py.
func registerPersonaCommands(r *Registry, deps *Deps) {
	r.Register(Definition{
		Name:        "persona",
		Args:        "<sub>",
		Description: "Manage personas (list, create, default, ...)",
		Section:     "persona",
		Handler:     cmdPersona(deps),
	})
	r.Register(Definition{
		Name:        "mcp",
		Description: "List available MCP servers",
		Section:     "persona",
		Handler:     cmdMCP(deps),
	})
	r.Register(Definition{
		Name:        "skills",
		Description: "List available agent skills",
		Section:     "persona",
		Handler:     cmdSkills(deps),
	})
	r.Register(Definition{
		Name:        "memory",
		Args:        "<sub>",
		Description: "Manage memories (list, set, get, delete)",
		Section:     "persona",
		Handler:     cmdMemory(deps),
	})
	r.Register(Definition{
		Name:        "summaries",
		Args:        "[sub]",
		Description: "View conversation summaries",
		Section:     "persona",
		Handler:     cmdSummaries(deps),
	})
}

const personaUsage = "Usage:\n" +
	"/persona list\n" +
	"/persona create <name> [description]\n" +
	"/persona info <name>\n" +
	"/persona default <name>\n" +
	"/persona delete <name>\n" +
	"/persona prompt <name> <text>\n" +
	"/persona mcp <name> <server1,server2,...>\n" +
	"/persona skills <name> <skill1,skill2,...>"

func cmdPersona(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			_, err := tc.Reply(ctx, personaUsage, false)
			return err
		}

		switch strings.ToLower(args[0]) {
		case "list":
			personas, err := deps.Store.ListPersonas(ctx)
			if err != nil {
				return err
			}
			if len(personas) == 0 {
				_, err := tc.Reply(ctx, "No personas yet. Use /persona create <name>", false)
				return err
			}
			lines := make([]string, 0, len(personas)*2)
			for _, p := range personas {
				marker := ""
				bullet := " "
				if p.IsDefault {
					marker = " (default)"
					bullet = ">"
				}
				lines = append(lines, fmt.Sprintf("%s **%s**%s", bullet, p.Name, marker))
				if p.Description != "" {
					lines = append(lines, "   "+p.Description)
				}
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err

		case "create":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /persona create <name> [description]", false)
				return err
			}
			name := args[1]
			desc := ""
			if len(args) > 2 {
				desc = strings.Join(args[2:], " ")
			}
			existing, err := deps.Store.GetPersona(ctx, name)
			if err != nil {
				return err
			}
			if existing != nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Persona '%s' already exists.", name), false)
				return err
			}
			if _, err := deps.Store.CreatePersona(ctx, store.Persona{Name: name, Description: desc}); err != nil {
				return err
			}
			_, err = tc.Reply(ctx, fmt.Sprintf("Created persona '%s'.", name), false)
			return err

		case "info":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /persona info <name>", false)
				return err
			}
			p, err := deps.Store.GetPersona(ctx, args[1])
			if err != nil {
				return err
			}
			if p == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Persona '%s' not found.", args[1]), false)
				return err
			}
			desc := p.Description
			if desc == "" {
				desc = "—"
			}
			def := "no"
			if p.IsDefault {
				def = "yes"
			}
			prompt := "—"
			if p.SystemPrompt != "" {
				prompt = p.SystemPrompt
				if len(prompt) > 100 {
					prompt = prompt[:100] + "..."
				}
			}
			mcp := "—"
			if len(p.MCPServers) > 0 {
				mcp = strings.Join(p.MCPServers, ", ")
			}
			skills := "—"
			if len(p.Skills) > 0 {
				skills = strings.Join(p.Skills, ", ")
			}
			lines := []string{
				"**" + p.Name + "**",
				"Description: " + desc,
				"Default: " + def,
				"System prompt: " + prompt,
				"MCP servers: " + mcp,
				"Skills: " + skills,
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err

		case "default":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /persona default <name>", false)
				return err
			}
			p, err := deps.Store.SetDefaultPersona(ctx, args[1])
			if err != nil {
				return err
			}
			if p == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Persona '%s' not found.", args[1]), false)
				return err
			}
			_, err = tc.Reply(ctx, fmt.Sprintf("Default persona set to '%s'.", p.Name), false)
			return err

		case "delete":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /persona delete <name>", false)
				return err
			}
			deleted, err := deps.Store.DeletePersona(ctx, args[1])
			if err != nil {
				return err
			}
			if deleted {
				_, err := tc.Reply(ctx, fmt.Sprintf("Deleted persona '%s'.", args[1]), false)
				return err
			}
			_, err = tc.Reply(ctx, fmt.Sprintf("Persona '%s' not found.", args[1]), false)
			return err

		case "prompt":
			if len(args) < 3 {
				_, err := tc.Reply(ctx, "Usage: /persona prompt <name> <text>", false)
				return err
			}
			name := args[1]
			promptText := strings.Join(args[2:], " ")
			p, err := deps.Store.UpdatePersona(ctx, name, store.PersonaUpdate{SystemPrompt: &promptText})
			if err != nil {
				return err
			}
			if p == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Persona '%s' not found.", name), false)
				return err
			}
			_, err = tc.Reply(ctx, fmt.Sprintf("System prompt updated for '%s'.", name), false)
			return err

		case "mcp":
			if len(args) < 3 {
				_, err := tc.Reply(ctx, "Usage: /persona mcp <name> <server1,server2,...>", false)
				return err
			}
			name := args[1]
			servers := splitTrimmed(args[2])
			p, err := deps.Store.UpdatePersona(ctx, name, store.PersonaUpdate{MCPServers: servers})
			if err != nil {
				return err
			}
			if p == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Persona '%s' not found.", name), false)
				return err
			}
			_, err = tc.Reply(ctx, fmt.Sprintf("MCP servers for '%s': %s", name, strings.Join(servers, ", ")), false)
			return err

		case "skills":
			if len(args) < 3 {
				_, err := tc.Reply(ctx, "Usage: /persona skills <name> <skill1,skill2,...>", false)
				return err
			}
			name := args[1]
			skillList := splitTrimmed(args[2])
			p, err := deps.Store.UpdatePersona(ctx, name, store.PersonaUpdate{Skills: skillList})
			if err != nil {
				return err
			}
			if p == nil {
				_, err := tc.Reply(ctx, fmt.Sprintf("Persona '%s' not found.", name), false)
				return err
			}
			_, err = tc.Reply(ctx, fmt.Sprintf("Skills for '%s' (priority order): %s", name, strings.Join(skillList, ", ")), false)
			return err

		default:
			_, err := tc.Reply(ctx, fmt.Sprintf("Unknown subcommand: %s. Use /persona for help.", args[0]), false)
			return err
		}
	}
}

func splitTrimmed(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// mcpProbeTimeout bounds how long /mcp waits per server before reporting
// it unreachable rather than hanging the command on a dead stdio process
// or an unresponsive HTTP endpoint.
const mcpProbeTimeout = 2 * time.Second

func cmdMCP(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		registry := mcpconfig.LoadRegistry()
		servers := mcpconfig.ListAvailableServers()
		if len(servers) == 0 {
			_, err := tc.Reply(ctx, "No MCP servers found.\nConfigure them in ~/.claude/mcp.json", false)
			return err
		}
		lines := []string{"**Available MCP servers:**", ""}
		for _, name := range servers {
			icon := "⚠️"
			probeCtx, cancel := context.WithTimeout(ctx, mcpProbeTimeout)
			if err := mcpconfig.Probe(probeCtx, name, registry[name]); err == nil {
				icon = "✅"
			}
			cancel()
			lines = append(lines, fmt.Sprintf("  %s `%s`", icon, name))
		}
		lines = append(lines, "", "Assign to persona: /persona mcp <name> server1,server2")
		_, err := tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}
}

func cmdSkills(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		found := mcpconfig.DiscoverSkills()
		if len(found) == 0 {
			_, err := tc.Reply(ctx, "No skills found.\nInstall skills in ~/.claude/skills/", false)
			return err
		}
		lines := []string{"**Available skills:**", ""}
		for _, name := range found {
			lines = append(lines, "  `"+name+"`")
		}
		lines = append(lines, "", "Assign to persona: /persona skills <name> skill1,skill2")
		_, err := tc.Reply(ctx, strings.Join(lines, "\n"), true)
		return err
	}
}

const memoryUsage = "Usage:\n" +
	"/memory list [category]\n" +
	"/memory set <category> <key> <value>\n" +
	"/memory get <category> <key>\n" +
	"/memory delete <category> <key>"

func cmdMemory(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			_, err := tc.Reply(ctx, memoryUsage, false)
			return err
		}

		userID := tc.UserID()

		switch strings.ToLower(args[0]) {
		case "list":
			category := ""
			if len(args) > 1 {
				category = args[1]
			}
			mems, err := deps.Store.ListMemories(ctx, userID, category, 50)
			if err != nil {
				return err
			}
			if len(mems) == 0 {
				_, err := tc.Reply(ctx, "No memories found.", false)
				return err
			}
			lines := make([]string, 0, len(mems))
			for _, m := range mems {
				content := m.Content
				if len(content) > 80 {
					content = content[:80]
				}
				lines = append(lines, fmt.Sprintf("**%s**/`%s`: %s", m.Category, m.Key, content))
			}
			_, err = tc.Reply(ctx, strings.Join(lines, "\n"), true)
			return err

		case "set":
			if len(args) < 4 {
				_, err := tc.Reply(ctx, "Usage: /memory set <category> <key> <value>", false)
				return err
			}
			category, key := args[1], args[2]
			value := strings.Join(args[3:], " ")
			if _, err := deps.Store.SetMemory(ctx, userID, category, key, value, nil); err != nil {
				return err
			}
			_, err := tc.Reply(ctx, fmt.Sprintf("Saved: %s/%s", category, key), false)
			return err

		case "get":
			if len(args) < 3 {
				_, err := tc.Reply(ctx, "Usage: /memory get <category> <key>", false)
				return err
			}
			mem, err := deps.Store.GetMemory(ctx, userID, args[1], args[2])
			if err != nil {
				return err
			}
			if mem == nil {
				_, err := tc.Reply(ctx, "Not found.", false)
				return err
			}
			text := fmt.Sprintf("**%s**/`%s`\n%s", mem.Category, mem.Key, mem.Content)
			if len(mem.Metadata) > 0 {
				if raw, jerr := json.Marshal(mem.Metadata); jerr == nil {
					text += "\n\nMetadata: `" + string(raw) + "`"
				}
			}
			_, err = tc.Reply(ctx, text, true)
			return err

		case "delete":
			if len(args) < 3 {
				_, err := tc.Reply(ctx, "Usage: /memory delete <category> <key>", false)
				return err
			}
			deleted, err := deps.Store.DeleteMemory(ctx, userID, args[1], args[2])
			if err != nil {
				return err
			}
			if deleted {
				_, err := tc.Reply(ctx, fmt.Sprintf("Deleted: %s/%s", args[1], args[2]), false)
				return err
			}
			_, err = tc.Reply(ctx, "Not found.", false)
			return err

		default:
			_, err := tc.Reply(ctx, fmt.Sprintf("Unknown subcommand: %s. Use /memory for help.", args[0]), false)
			return err
		}
	}
}

func cmdSummaries(deps *Deps) HandlerFunc {
	return func(ctx context.Context, tc transport.Context, args []string) error {
		if len(args) == 0 {
			sessionName := ""
			if session := deps.Sessions.Current(); session != nil {
				sessionName = session.Name
			}
			sums, err := deps.Store.Summaries(ctx, sessionName, 5)
			if err != nil {
				return err
			}
			_, err = tc.Reply(ctx, formatSummaries(sums, 150, true), true)
			return err
		}

		switch strings.ToLower(args[0]) {
		case "all":
			sums, err := deps.Store.Summaries(ctx, "", 10)
			if err != nil {
				return err
			}
			_, err = tc.Reply(ctx, formatSummaries(sums, 100, false), true)
			return err

		case "search":
			if len(args) < 2 {
				_, err := tc.Reply(ctx, "Usage: /summaries search <query>", false)
				return err
			}
			query := strings.Join(args[1:], " ")
			sums, err := deps.Store.SearchSummaries(ctx, "", query, summaryListLimit)
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				_, err := tc.Reply(ctx, fmt.Sprintf("No summaries matching '%s'.", query), false)
				return err
			}
			_, err = tc.Reply(ctx, formatSummaries(sums, 150, false), true)
			return err

		case "milestones":
			sums, err := deps.Store.Milestones(ctx, "", 10)
			if err != nil {
				return err
			}
			if len(sums) == 0 {
				_, err := tc.Reply(ctx, "No milestones found.", false)
				return err
			}
			_, err = tc.Reply(ctx, formatSummaries(sums, 150, false), true)
			return err

		default:
			_, err := tc.Reply(ctx, "Usage:\n"+
				"/summaries — recent for current session\n"+
				"/summaries all — recent across all sessions\n"+
				"/summaries search <query>\n"+
				"/summaries milestones", false)
			return err
		}
	}
}

func formatSummaries(sums []*store.ConversationSummary, previewLen int, emptyMsg bool) string {
	if len(sums) == 0 {
		if emptyMsg {
			return "No summaries yet."
		}
		return "No summaries found."
	}
	lines := make([]string, 0, len(sums)*3)
	for _, cs := range sums {
		ts := cs.CreatedAt.Format("2006-01-02 15:04")
		marker := ""
		if cs.IsMilestone {
			marker = " *"
		}
		lines = append(lines, fmt.Sprintf("**%s**%s [%s] (%d msgs)", ts, marker, cs.SessionName, cs.MessageCount))
		preview := cs.Summary
		if len(preview) > previewLen {
			preview = preview[:previewLen] + "..."
		}
		lines = append(lines, "  "+preview)
		lines = append(lines, "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
