package turnengine

import (
	"fmt"
	"path/filepath"
	"strings"
)

const shellDescriptionMaxLen = 40

// ToolStatusLine maps one tool invocation to a short human-legible status
// line, shown to the user while the agent is working (spec §4.3).
func ToolStatusLine(toolName string, input map[string]any) string {
	switch toolName {
	case "Read":
		return fileOpLine("Reading", input)
	case "Write":
		return fileOpLine("Writing", input)
	case "Edit":
		return fileOpLine("Editing", input)
	case "Glob":
		return "Searching files…"
	case "Grep":
		return "Searching codebase…"
	case "Bash":
		if desc, ok := input["description"].(string); ok && desc != "" {
			return truncateEllipsis(desc, shellDescriptionMaxLen) + "…"
		}
		return "Running command…"
	case "WebFetch":
		return "Fetching page…"
	case "WebSearch":
		return "Searching web…"
	case "Task":
		return "Launching agent…"
	default:
		return toolName + "…"
	}
}

func fileOpLine(verb string, input map[string]any) string {
	path, _ := input["file_path"].(string)
	if path == "" {
		path, _ = input["path"].(string)
	}
	if path == "" {
		return verb + "…"
	}
	return fmt.Sprintf("%s %s…", verb, filepath.Base(path))
}

func truncateEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// toolUse pairs a tool name with its input, mirroring claude_bridge.py's
// (name, input) tuples.
type toolUse struct {
	Name  string
	Input map[string]any
}

// ToolSummary formats a compact grouped post-turn block from the ordered
// list of tool uses in a turn: shell commands joined with a middle dot,
// file ops deduplicated with "×N" counts, search patterns listed inline.
// Ordering preserves first-seen order across groups (spec §4.3).
func ToolSummary(uses []toolUse) string {
	if len(uses) == 0 {
		return ""
	}

	type fileOpKey struct{ verb, name string }
	var order []string
	seen := make(map[string]bool)

	fileOpCounts := make(map[fileOpKey]int)
	var fileOpOrder []fileOpKey
	var shellCmds []string
	var searchPatterns []string
	var other []string

	addGroup := func(g string) {
		if !seen[g] {
			seen[g] = true
			order = append(order, g)
		}
	}

	for _, u := range uses {
		switch u.Name {
		case "Read", "Write", "Edit":
			verb := map[string]string{"Read": "read", "Write": "wrote", "Edit": "edited"}[u.Name]
			path, _ := u.Input["file_path"].(string)
			if path == "" {
				path, _ = u.Input["path"].(string)
			}
			k := fileOpKey{verb, filepath.Base(path)}
			if fileOpCounts[k] == 0 {
				fileOpOrder = append(fileOpOrder, k)
			}
			fileOpCounts[k]++
			addGroup("files")
		case "Bash":
			desc, _ := u.Input["description"].(string)
			if desc == "" {
				if cmd, ok := u.Input["command"].(string); ok {
					desc = cmd
				}
			}
			if desc != "" {
				shellCmds = append(shellCmds, truncateEllipsis(desc, shellDescriptionMaxLen))
			}
			addGroup("shell")
		case "Glob", "Grep":
			if pat, ok := u.Input["pattern"].(string); ok && pat != "" {
				searchPatterns = append(searchPatterns, pat)
			}
			addGroup("search")
		default:
			other = append(other, u.Name)
			addGroup("other")
		}
	}

	var lines []string
	for _, g := range order {
		switch g {
		case "files":
			var parts []string
			for _, k := range fileOpOrder {
				n := fileOpCounts[k]
				if n > 1 {
					parts = append(parts, fmt.Sprintf("%s %s ×%d", k.verb, k.name, n))
				} else {
					parts = append(parts, fmt.Sprintf("%s %s", k.verb, k.name))
				}
			}
			lines = append(lines, "Files: "+strings.Join(parts, ", "))
		case "shell":
			lines = append(lines, "Shell: "+strings.Join(shellCmds, " · "))
		case "search":
			lines = append(lines, "Search: "+strings.Join(searchPatterns, ", "))
		case "other":
			lines = append(lines, "Other: "+strings.Join(other, ", "))
		}
	}
	return strings.Join(lines, "\n")
}
