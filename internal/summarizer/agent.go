package summarizer

import (
	"context"
	"fmt"

	"github.com/megobari/megobari/internal/agentinvoker"
)

// NewAgentSender adapts an Invoker into a SendFunc that runs the
// summarization prompt as a fresh, isolated agent session — it never
// resumes the thread under review, matching the original's "outside the
// DB session" isolation for check_and_summarize.
func NewAgentSender(inv *agentinvoker.Invoker, cwd string) SendFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		req := agentinvoker.Request{
			Prompt:       prompt,
			SystemPrompt: agentinvoker.BaseSystemPrompt,
			Cwd:          cwd,
		}
		events, errs := inv.Invoke(ctx, req)

		var resultText string
		for ev := range events {
			if ev.Kind == agentinvoker.EventResult {
				resultText = ev.ResultText
			}
		}
		if err, ok := <-errs; ok && err != nil {
			return "", err
		}
		if resultText == "" {
			return "", fmt.Errorf("summarizer: empty agent response")
		}
		return resultText, nil
	}
}
