// Package agentinvoker launches the coding-agent CLI as a subprocess for
// one turn and yields its streaming output as a typed event sequence. It
// never interprets the agent's own behavior beyond the wire shape it
// already speaks (newline-delimited JSON on stdout) — the agent itself is
// an external collaborator.
package agentinvoker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/mcpconfig"
)

// Invoker launches the configured agent command for each turn.
type Invoker struct {
	command  string
	baseArgs []string
	log      zerolog.Logger
}

// New constructs an Invoker. command/baseArgs come from Config
// (AgentCommand, read from AGENT_COMMAND, and AgentArgs, which
// config.Load leaves empty); baseArgs are prepended to every
// invocation's computed flags (e.g. a wrapper script's fixed options).
func New(command string, baseArgs []string, log zerolog.Logger) *Invoker {
	return &Invoker{
		command:  command,
		baseArgs: baseArgs,
		log:      log.With().Str("component", "agentinvoker").Logger(),
	}
}

// Invoke runs one turn. It returns a channel of Events (closed when the
// process finishes or errors) and an error channel that receives at most
// one terminal process/connection error (distinct from an in-band
// EventResult, which always indicates the agent itself responded).
//
// Cancelling ctx sends SIGTERM to the child and closes both channels.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	events := make(chan Event, 64)
	errs := make(chan error, 1)

	invocationID := uuid.NewString()
	log := inv.log.With().Str("invocation_id", invocationID).Logger()

	args := inv.buildArgs(req)
	cmd := exec.CommandContext(ctx, inv.command, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.Dir = req.Cwd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errs <- fmt.Errorf("stdout pipe: %w", err)
		close(events)
		close(errs)
		return events, errs
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		errs <- fmt.Errorf("stderr pipe: %w", err)
		close(events)
		close(errs)
		return events, errs
	}

	if err := cmd.Start(); err != nil {
		errs <- fmt.Errorf("start agent process: %w", err)
		close(events)
		close(errs)
		return events, errs
	}
	log.Debug().Str("cwd", req.Cwd).Msg("agent process started")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		inv.readLoop(log, stdout, events)
	}()
	go func() {
		defer wg.Done()
		inv.drainStderr(log, stderr)
	}()

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()
		if waitErr != nil && ctx.Err() == nil {
			log.Warn().Err(waitErr).Msg("agent process finished with error")
			errs <- fmt.Errorf("agent process error: %w", waitErr)
		} else {
			log.Debug().Msg("agent process finished")
		}
		close(events)
		close(errs)
	}()

	return events, errs
}

// buildArgs turns a Request into CLI flags for the agent command.
// Grounded on the original's ClaudeAgentOptions construction: permission
// mode, cwd, disallowed tools, system prompt, thinking config, effort,
// model, max turns/budget, and resume token.
func (inv *Invoker) buildArgs(req Request) []string {
	args := append([]string{}, inv.baseArgs...)
	args = append(args,
		"--output-format", "stream-json",
		"--print",
		"--system-prompt", req.SystemPrompt,
		"--disallowed-tools", strings.Join(DisallowedTools, ","),
	)
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}
	if req.ModelID != "" {
		args = append(args, "--model", req.ModelID)
	}
	switch req.ThinkingMode {
	case "enabled":
		budget := req.ThinkingBudget
		if budget == 0 {
			budget = 10000
		}
		args = append(args, "--thinking", "enabled", "--thinking-budget", strconv.Itoa(budget))
	case "disabled":
		args = append(args, "--thinking", "disabled")
	case "adaptive", "":
		args = append(args, "--thinking", "adaptive")
	}
	if req.EffortLevel != "" {
		args = append(args, "--effort", req.EffortLevel)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	if req.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", strconv.FormatFloat(req.MaxBudgetUSD, 'f', -1, 64))
	}
	if req.ResumeThreadID != "" {
		args = append(args, "--resume", req.ResumeThreadID)
	}
	for _, dir := range req.ExtraDirs {
		args = append(args, "--add-dir", dir)
	}
	if mcpJSON := buildMCPConfigJSON(req.MCPServers); mcpJSON != "" {
		args = append(args, "--mcp-config", mcpJSON)
	}
	args = append(args, req.Prompt)
	return args
}

// buildMCPConfigJSON resolves a persona's named MCP servers against the
// local ~/.claude/mcp.json registry and serializes the matches back into
// the same {"mcpServers": {...}} shape the agent CLI's --mcp-config flag
// expects. Grounded on filter_mcp_servers + ClaudeAgentOptions.mcp_servers
// in handlers/claude.py: there the filtered dict is handed to the SDK
// in-process, here it's echoed back out as a CLI flag since the agent
// runs as a subprocess instead of an in-process SDK call. Returns "" if
// the persona named no servers, or named none that still exist.
func buildMCPConfigJSON(names []string) string {
	if len(names) == 0 {
		return ""
	}
	filtered := mcpconfig.FilterServers(mcpconfig.LoadRegistry(), names)
	if len(filtered) == 0 {
		return ""
	}
	data, err := json.Marshal(struct {
		MCPServers map[string]mcpconfig.ServerConfig `json:"mcpServers"`
	}{MCPServers: filtered})
	if err != nil {
		return ""
	}
	return string(data)
}

func (inv *Invoker) readLoop(log zerolog.Logger, stdout io.Reader, events chan<- Event) {
	sc := bufio.NewScanner(stdout)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ev, ok := parseEvent(line)
		if !ok {
			log.Debug().Str("line", line).Msg("unparseable agent stream line, skipping")
			continue
		}
		events <- ev
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Msg("agent stdout scanner error")
	}
}

func (inv *Invoker) drainStderr(log zerolog.Logger, stderr io.Reader) {
	r := bufio.NewReader(stderr)
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			log.Debug().Str("stderr", line).Msg("agent stderr")
		}
		if err != nil {
			return
		}
	}
}

// parseEvent decodes one NDJSON line into an Event. Unknown "type" values
// degrade to an opaque EventSystem rather than aborting the turn (spec
// §7's "Agent parse error" policy).
func parseEvent(line string) (Event, bool) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Event{}, false
	}
	var typ string
	if t, ok := raw["type"]; ok {
		json.Unmarshal(t, &typ)
	}

	switch typ {
	case "system":
		var sub string
		if s, ok := raw["subtype"]; ok {
			json.Unmarshal(s, &sub)
		}
		if sub == "init" {
			var data struct {
				SessionID string `json:"session_id"`
			}
			if d, ok := raw["session_id"]; ok {
				json.Unmarshal(d, &data.SessionID)
			}
			return Event{Kind: EventInit, ThreadID: data.SessionID}, true
		}
		return Event{Kind: EventSystem, Subtype: sub, Raw: decodeRawMap(raw)}, true

	case "assistant":
		return parseAssistantEvent(raw)

	case "result":
		return parseResultEvent(raw)

	default:
		return Event{Kind: EventSystem, Subtype: typ, Raw: decodeRawMap(raw)}, true
	}
}

func parseAssistantEvent(raw map[string]json.RawMessage) (Event, bool) {
	var msg struct {
		Message struct {
			Content []struct {
				Type  string         `json:"type"`
				Text  string         `json:"text"`
				Name  string         `json:"name"`
				Input map[string]any `json:"input"`
			} `json:"content"`
		} `json:"message"`
	}
	full, _ := json.Marshal(raw)
	if err := json.Unmarshal(full, &msg); err != nil {
		return Event{}, false
	}
	for _, block := range msg.Message.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				return Event{Kind: EventText, Text: block.Text}, true
			}
		case "tool_use":
			return Event{Kind: EventToolUse, ToolName: block.Name, ToolInput: block.Input}, true
		}
	}
	return Event{Kind: EventSystem, Subtype: "assistant_empty"}, true
}

func parseResultEvent(raw map[string]json.RawMessage) (Event, bool) {
	var res struct {
		Result        string  `json:"result"`
		SessionID     string  `json:"session_id"`
		TotalCostUSD  float64 `json:"total_cost_usd"`
		NumTurns      int     `json:"num_turns"`
		DurationAPIMS int64   `json:"duration_api_ms"`
		Usage         struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	full, _ := json.Marshal(raw)
	if err := json.Unmarshal(full, &res); err != nil {
		return Event{}, false
	}
	return Event{
		Kind:        EventResult,
		ResultText:  res.Result,
		NewThreadID: res.SessionID,
		Usage: Usage{
			CostUSD:      res.TotalCostUSD,
			NumTurns:     res.NumTurns,
			DurationMS:   res.DurationAPIMS,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		},
	}, true
}

func decodeRawMap(raw map[string]json.RawMessage) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			out[k] = val
		}
	}
	return out
}
