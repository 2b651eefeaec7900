// Package turnengine implements the per-turn orchestration that ties the
// Agent Invoker, Recall Builder, Action Executor, and Store together:
// process_turn (spec §4.2). Grounded on claude_bridge.py's send_to_claude
// and _run_query for protocol semantics, and handlers/claude.py's
// handle_message/_process_prompt for the surrounding streaming/batched
// reply logic.
package turnengine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/actions"
	"github.com/megobari/megobari/internal/agentinvoker"
	"github.com/megobari/megobari/internal/recall"
	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/transport"
)

// ErrSessionBusy is returned by ProcessTurn when the named session already
// has a turn in flight.
var ErrSessionBusy = errors.New("session is busy")

// streamEditThreshold mirrors the original's edit_threshold: the
// accumulated-text streaming placeholder is re-edited every time it grows
// by at least this many bytes.
const streamEditThreshold = 200

// Store is the subset of *store.Store the Turn Engine writes to directly.
// Summarization and recall reads are owned by the recall/summarizer
// packages.
type Store interface {
	AddMessage(ctx context.Context, sessionName, role, content string, userID int64) (*store.Message, error)
	AddUsageRecord(ctx context.Context, u store.UsageRecord) (*store.UsageRecord, error)
}

// Engine runs turns for the whole process. One Engine is shared across all
// sessions; BusySet gives per-session mutual exclusion.
type Engine struct {
	invoker  *agentinvoker.Invoker
	store    Store
	recall   recall.Store
	registry *sessionstore.Registry
	executor *actions.Executor
	busy     *BusySet
	usage    *usageAggregator

	// OnTurnComplete is called (outside the Busy Set guard, fire-and-forget
	// from the caller's perspective) after a turn finishes, so the caller
	// can trigger background summarization. May be nil.
	OnTurnComplete func(sessionName string)

	log zerolog.Logger
}

// New constructs an Engine.
func New(invoker *agentinvoker.Invoker, st Store, rec recall.Store, registry *sessionstore.Registry, executor *actions.Executor, log zerolog.Logger) *Engine {
	return &Engine{
		invoker:  invoker,
		store:    st,
		recall:   rec,
		registry: registry,
		executor: executor,
		busy:     NewBusySet(),
		usage:    newUsageAggregator(),
		log:      log.With().Str("component", "turnengine").Logger(),
	}
}

// BusySet exposes the shared busy-set so callers (command handlers) can
// test membership before accepting new input for a session.
func (e *Engine) BusySet() *BusySet { return e.busy }

// ProcessTurn runs one full turn for session, replying through tc. userID
// is the Telegram user id (0 if unknown), used for memory-scoped recall
// and action execution.
func (e *Engine) ProcessTurn(ctx context.Context, tc transport.Context, session *sessionstore.Session, userID int64, prompt string) error {
	if !e.busy.TryAcquire(session.Name) {
		return ErrSessionBusy
	}
	defer e.busy.Release(session.Name)

	typing := newTypingIndicator(ctx, tc)
	typing.Start()
	defer typing.Stop()

	recallResult := recall.Build(ctx, e.recall, session.Name, userID)

	var (
		fullText    string
		uses        []toolUse
		newThreadID string
		usage       agentinvoker.Usage
		runErr      error
	)

	if session.Streaming {
		acc := newStreamAccumulator(ctx, tc)
		acc.initialize()
		fullText, uses, newThreadID, usage, runErr = e.runWithRetry(ctx, session, recallResult, prompt, acc.onText, acc.onToolUse)
		acc.finalize(fullText)

		if runErr != nil {
			fullText = fmt.Sprintf("Error: %v", runErr)
			if _, err := tc.Reply(ctx, fullText, false); err != nil {
				e.log.Debug().Err(err).Msg("failed to send error reply")
			}
		} else {
			cleaned, acts := actions.Parse(fullText)
			e.runActions(ctx, tc, userID, acts)

			if len(acts) > 0 && cleaned != "" {
				acc.rerender(cleaned)
			} else if len(fullText) > tc.MaxMessageLength() {
				for _, chunk := range SplitMessage(fullText, tc.MaxMessageLength()) {
					if _, err := tc.Reply(ctx, chunk, true); err != nil {
						e.log.Debug().Err(err).Msg("failed to send overflow chunk")
					}
				}
			}
			if len(uses) > 0 {
				if _, err := tc.Reply(ctx, ToolSummary(uses), true); err != nil {
					e.log.Debug().Err(err).Msg("failed to send tool summary")
				}
			}
		}
	} else {
		status := newStatusMessenger(ctx, tc)
		fullText, uses, newThreadID, usage, runErr = e.runWithRetry(ctx, session, recallResult, prompt, nil, status.onToolUse)
		status.finish()

		if runErr != nil {
			fullText = fmt.Sprintf("Error: %v", runErr)
		} else {
			cleaned, acts := actions.Parse(fullText)
			e.runActions(ctx, tc, userID, acts)
			fullText = cleaned
		}

		display := fullText
		if len(uses) > 0 {
			display = ToolSummary(uses) + "\n\n" + fullText
		}
		for _, chunk := range SplitMessage(display, tc.MaxMessageLength()) {
			if _, err := tc.Reply(ctx, chunk, true); err != nil {
				e.log.Debug().Err(err).Msg("failed to send reply chunk")
				break
			}
		}
	}

	if newThreadID != "" {
		e.registry.SetAgentThread(session.Name, newThreadID)
	}

	e.usage.Add(session.Name, usage)
	go e.persistUsage(session.Name, userID, usage)
	go e.logMessages(session.Name, userID, prompt, fullText)

	if e.OnTurnComplete != nil {
		go e.OnTurnComplete(session.Name)
	}

	return nil
}

// runWithRetry runs one query; if it fails with a process/connection error
// and the session had a thread id, it retries exactly once without
// resumption (spec §4.2 "Resumption-failure policy").
func (e *Engine) runWithRetry(
	ctx context.Context,
	session *sessionstore.Session,
	rec recall.Result,
	prompt string,
	onText func(string),
	onToolUse func(string, map[string]any),
) (text string, uses []toolUse, newThreadID string, usage agentinvoker.Usage, err error) {
	req := buildRequest(session, rec, prompt, true)
	text, uses, newThreadID, usage, err = e.runQuery(ctx, req, onText, onToolUse)
	if err == nil || session.AgentThreadID == "" {
		return
	}

	e.log.Warn().Err(err).Str("session", session.Name).Msg("resume failed, retrying as fresh session")
	freshReq := buildRequest(session, rec, prompt, false)
	return e.runQuery(ctx, freshReq, onText, onToolUse)
}

func (e *Engine) runQuery(
	ctx context.Context,
	req agentinvoker.Request,
	onText func(string),
	onToolUse func(string, map[string]any),
) (text string, uses []toolUse, newThreadID string, usage agentinvoker.Usage, err error) {
	events, errs := e.invoker.Invoke(ctx, req)

	var textParts []string
	for ev := range events {
		switch ev.Kind {
		case agentinvoker.EventInit:
			newThreadID = ev.ThreadID
		case agentinvoker.EventText:
			if ev.Text == "" {
				continue
			}
			textParts = append(textParts, ev.Text)
			if onText != nil {
				onText(ev.Text)
			}
		case agentinvoker.EventToolUse:
			uses = append(uses, toolUse{Name: ev.ToolName, Input: ev.ToolInput})
			if onToolUse != nil {
				onToolUse(ev.ToolName, ev.ToolInput)
			}
		case agentinvoker.EventResult:
			if ev.NewThreadID != "" {
				newThreadID = ev.NewThreadID
			}
			usage = ev.Usage
			if ev.ResultText != "" && len(textParts) == 0 {
				textParts = append(textParts, ev.ResultText)
			}
		case agentinvoker.EventSystem:
			e.log.Debug().Str("subtype", ev.Subtype).Msg("system event during turn")
		}
	}
	if procErr, ok := <-errs; ok && procErr != nil {
		err = procErr
	}

	text = strings.Join(textParts, "\n")
	if text == "" && err == nil {
		text = "(no response)"
	}
	return
}

func (e *Engine) runActions(ctx context.Context, tc transport.Context, userID int64, acts []actions.Action) {
	if len(acts) == 0 {
		return
	}
	for _, errText := range e.executor.Execute(ctx, tc, userID, acts) {
		if _, err := tc.Reply(ctx, "⚠️ "+errText, false); err != nil {
			e.log.Debug().Err(err).Msg("failed to send action error reply")
		}
	}
}

func (e *Engine) persistUsage(sessionName string, userID int64, usage agentinvoker.Usage) {
	if usage.NumTurns == 0 && usage.CostUSD == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := e.store.AddUsageRecord(ctx, store.UsageRecord{
		SessionName:  sessionName,
		CostUSD:      usage.CostUSD,
		NumTurns:     usage.NumTurns,
		DurationMS:   usage.DurationMS,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		UserID:       userID,
	})
	if err != nil {
		e.log.Error().Err(err).Str("session", sessionName).Msg("failed to persist usage record")
	}
}

func (e *Engine) logMessages(sessionName string, userID int64, userText, assistantText string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := e.store.AddMessage(ctx, sessionName, "user", userText, userID); err != nil {
		e.log.Error().Err(err).Msg("failed to log user message")
	}
	if _, err := e.store.AddMessage(ctx, sessionName, "assistant", assistantText, userID); err != nil {
		e.log.Error().Err(err).Msg("failed to log assistant message")
	}
}

// AdHocOption tweaks the throwaway session RunAdHoc builds before sending
// its one-shot prompt.
type AdHocOption func(*sessionstore.Session)

// WithBypassPermissions runs the ad hoc prompt with permissions fully
// escalated, matching monitor.py's summarize_baseline/summarize_changes/
// generate_report sessions, which all set permission_mode=bypassPermissions
// since they run unattended with no user present to approve tool calls.
func WithBypassPermissions() AdHocOption {
	return func(s *sessionstore.Session) {
		s.PermissionMode = sessionstore.PermissionBypassPermissions
	}
}

// WithMaxTurns caps the number of agent turns for the ad hoc prompt.
func WithMaxTurns(n int) AdHocOption {
	return func(s *sessionstore.Session) {
		s.MaxTurns = &n
	}
}

// RunAdHoc runs a single isolated, one-shot prompt outside of any chat
// turn: no Busy Set, no typing indicator, no transport, no message
// logging, no thread persistence. Used by the Scheduler for cron jobs and
// heartbeat checks, and by the Monitor Engine for baseline/change/report
// summarization, all of which build a throwaway session and a fresh agent
// thread on every run (grounded on scheduler.py's _execute_cron and
// _run_heartbeat, and monitor.py's summarize_baseline/summarize_changes/
// generate_report, which all construct a one-off Session and call
// send_to_claude directly rather than going through the chat handler).
func (e *Engine) RunAdHoc(ctx context.Context, sessionName, cwd, prompt string, opts ...AdHocOption) (string, error) {
	session := &sessionstore.Session{
		Name:           sessionName,
		Cwd:            cwd,
		PermissionMode: sessionstore.PermissionDefault,
		ThinkingMode:   sessionstore.ThinkingAdaptive,
	}
	for _, opt := range opts {
		opt(session)
	}
	recallResult := recall.Build(ctx, e.recall, sessionName, 0)
	req := buildRequest(session, recallResult, prompt, false)
	text, _, _, _, err := e.runQuery(ctx, req, nil, nil)
	return text, err
}

// SessionUsage returns the in-memory usage aggregate for a session,
// accumulated across turns since process start (spec §5's "in-memory
// per-session usage aggregates").
func (e *Engine) SessionUsage(sessionName string) agentinvoker.Usage {
	return e.usage.Get(sessionName)
}

// usageAggregator accumulates per-session usage totals in memory. The
// Busy Set guarantees at most one writer per session at a time, but
// Get() can race with a concurrent Add() from a different session, so
// access is still mutex-guarded.
type usageAggregator struct {
	mu     sync.Mutex
	totals map[string]agentinvoker.Usage
}

func newUsageAggregator() *usageAggregator {
	return &usageAggregator{totals: make(map[string]agentinvoker.Usage)}
}

func (a *usageAggregator) Add(sessionName string, u agentinvoker.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := a.totals[sessionName]
	t.CostUSD += u.CostUSD
	t.NumTurns += u.NumTurns
	t.DurationMS += u.DurationMS
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
	a.totals[sessionName] = t
}

func (a *usageAggregator) Get(sessionName string) agentinvoker.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totals[sessionName]
}
