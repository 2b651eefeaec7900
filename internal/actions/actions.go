// Package actions parses and executes the "megobari" fenced action blocks
// the agent embeds in its replies — the only sanctioned side-effect
// channel out of the agent (spec §4.4, §9 "Action-protocol boundary").
// Parsing is total: it never panics, regardless of how malformed the
// agent's output is.
package actions

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// blockRE matches ```megobari\n{...}\n``` blocks, tolerant of surrounding
// whitespace. Grounded 1:1 on actions.py's _ACTION_BLOCK_RE.
var blockRE = regexp.MustCompile("(?s)```megobari\\s*\\n(.*?)\\n\\s*```")

var blankRunRE = regexp.MustCompile(`\n{3,}`)

// Action is one parsed action block. Fields beyond Type are looked up by
// the executor from Raw, keyed by the action-specific JSON shape in spec §4.4.
type Action struct {
	Type string
	Raw  map[string]any
}

// Parse extracts every megobari action block from text. It returns the
// cleaned text (blocks removed, run-of-3+ newlines collapsed to two,
// trimmed) and the list of successfully parsed actions. Invalid JSON or a
// block missing "action" is left in the cleaned text verbatim and logged.
//
// Parse(Parse(t)) on the cleaned text component always yields (cleaned, nil)
// — idempotent, per spec Testable Property 2.
func Parse(text string) (string, []Action) {
	var actions []Action
	type span struct{ start, end int }
	var remove []span

	for _, m := range blockRE.FindAllStringSubmatchIndex(text, -1) {
		blockStart, blockEnd := m[0], m[1]
		bodyStart, bodyEnd := m[2], m[3]
		raw := strings.TrimSpace(text[bodyStart:bodyEnd])

		var data map[string]any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			log.Warn().Str("block", truncate(raw, 200)).Msg("invalid JSON in megobari block")
			continue
		}
		actionType, ok := data["action"].(string)
		if !ok || actionType == "" {
			log.Warn().Str("block", truncate(raw, 200)).Msg("megobari block missing action key")
			continue
		}
		actions = append(actions, Action{Type: actionType, Raw: data})
		remove = append(remove, span{blockStart, blockEnd})
	}

	cleaned := text
	for i := len(remove) - 1; i >= 0; i-- {
		s := remove[i]
		cleaned = cleaned[:s.start] + cleaned[s.end:]
	}
	cleaned = blankRunRE.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)

	return cleaned, actions
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// stringField returns a's field k as a string, or "" if absent/wrong type.
func stringField(a Action, k string) string {
	v, _ := a.Raw[k].(string)
	return v
}
