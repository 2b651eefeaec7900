package turnengine

import (
	"context"

	"github.com/megobari/megobari/internal/transport"
)

// streamAccumulator accumulates streamed text chunks and edits a single
// placeholder message in place. Grounded 1:1 on handlers/claude.py's
// StreamingAccumulator.
type streamAccumulator struct {
	ctx context.Context
	tc  transport.Context

	handle      transport.MessageHandle
	accumulated string
	lastEditLen int
	textStarted bool
}

func newStreamAccumulator(ctx context.Context, tc transport.Context) *streamAccumulator {
	return &streamAccumulator{ctx: ctx, tc: tc}
}

func (a *streamAccumulator) initialize() {
	handle, err := a.tc.Reply(a.ctx, "…", false)
	if err == nil {
		a.handle = handle
	}
}

// onToolUse updates the placeholder with a status line, but only before
// any text has started streaming (once the model is producing text, tool
// status would just flicker and get overwritten).
func (a *streamAccumulator) onToolUse(toolName string, toolInput map[string]any) {
	if a.textStarted || a.handle == nil {
		return
	}
	_ = a.tc.EditMessage(a.ctx, a.handle, ToolStatusLine(toolName, toolInput), false)
}

func (a *streamAccumulator) onText(text string) {
	a.textStarted = true
	a.accumulated += text
	if len(a.accumulated)-a.lastEditLen >= streamEditThreshold {
		a.doEdit()
	}
}

func (a *streamAccumulator) doEdit() {
	if a.handle == nil {
		return
	}
	display := a.accumulated
	if max := a.tc.MaxMessageLength(); len(display) > max {
		display = display[:max]
	}
	if err := a.tc.EditMessage(a.ctx, a.handle, display, true); err != nil {
		_ = a.tc.EditMessage(a.ctx, a.handle, display, false)
	}
	a.lastEditLen = len(a.accumulated)
}

// finalize performs the last edit (or deletes the placeholder if the
// accumulated text overflowed the transport's single-message limit —
// the caller is responsible for sending split chunks separately).
func (a *streamAccumulator) finalize(fullText string) {
	if a.handle == nil {
		return
	}
	if fullText == "" {
		return
	}
	if len(fullText) <= a.tc.MaxMessageLength() {
		a.doEdit()
		return
	}
	_ = a.tc.DeleteMessage(a.ctx, a.handle)
	a.handle = nil
}

// rerender replaces the placeholder's content with cleaned (action-block-
// stripped) text, falling back to chunked sends if it no longer fits
// (spec §4.2 step 9).
func (a *streamAccumulator) rerender(cleaned string) {
	if a.handle != nil && len(cleaned) <= a.tc.MaxMessageLength() {
		if err := a.tc.EditMessage(a.ctx, a.handle, cleaned, true); err == nil {
			return
		}
		_ = a.tc.EditMessage(a.ctx, a.handle, cleaned, false)
		return
	}
	if a.handle != nil {
		_ = a.tc.DeleteMessage(a.ctx, a.handle)
		a.handle = nil
	}
	for _, chunk := range SplitMessage(cleaned, a.tc.MaxMessageLength()) {
		_, _ = a.tc.Reply(a.ctx, chunk, true)
	}
}

// statusMessenger shows tool activity as a single message that gets
// replaced in place, for non-streaming turns. Grounded on
// handlers/claude.py's _on_tool_use_ns closure.
type statusMessenger struct {
	ctx    context.Context
	tc     transport.Context
	handle transport.MessageHandle
}

func newStatusMessenger(ctx context.Context, tc transport.Context) *statusMessenger {
	return &statusMessenger{ctx: ctx, tc: tc}
}

func (s *statusMessenger) onToolUse(toolName string, toolInput map[string]any) {
	status := ToolStatusLine(toolName, toolInput)
	if s.handle == nil {
		handle, err := s.tc.Reply(s.ctx, status, false)
		if err == nil {
			s.handle = handle
		}
		return
	}
	_ = s.tc.EditMessage(s.ctx, s.handle, status, false)
}

// finish removes the status message before the real response is sent.
func (s *statusMessenger) finish() {
	if s.handle == nil {
		return
	}
	_ = s.tc.DeleteMessage(s.ctx, s.handle)
	s.handle = nil
}
