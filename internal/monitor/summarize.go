package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/megobari/megobari/internal/turnengine"
)

const (
	maxBaselineContentChars = 8000
	maxChangeContentChars   = 3000
)

// Runner executes a single isolated agent prompt outside of any chat
// turn (implemented by *turnengine.Engine's RunAdHoc).
type Runner interface {
	RunAdHoc(ctx context.Context, sessionName, cwd, prompt string, opts ...turnengine.AdHocOption) (string, error)
}

type changeSummary struct {
	Summary    string
	ChangeType string
}

// summarizeBaseline asks the Agent to extract concrete facts from a first-
// ever snapshot (no prior content to diff against). Returns change_type
// "baseline" always.
func summarizeBaseline(ctx context.Context, runner Runner, cwd, resourceType, entityName, contentMarkdown string) (*changeSummary, error) {
	if strings.TrimSpace(contentMarkdown) == "" {
		return &changeSummary{Summary: "Page returned empty content.", ChangeType: "baseline"}, nil
	}

	prompt := fmt.Sprintf(
		"You are analyzing a scraped %s page for '%s'.\n\n"+
			"Extract the most important SPECIFIC facts from this content:\n"+
			"- Recent blog post titles with dates\n"+
			"- Product announcements and feature launches\n"+
			"- Pricing details (exact numbers, tiers, free plans)\n"+
			"- Job openings or hiring signals\n"+
			"- Partnerships, funding, acquisitions\n\n"+
			"Write 2-4 sentences with concrete details — names, dates, numbers. "+
			"Do NOT describe what the page is (e.g. 'serves as a marketing hub'). "+
			"Only state actual facts found in the content.\n\n"+
			"Respond with ONLY valid JSON, no markdown fences:\n"+
			`{"summary": "..."}`+"\n\n"+
			"--- CONTENT ---\n%s",
		resourceType, entityName, truncateChars(contentMarkdown, maxBaselineContentChars),
	)

	text, err := runner.RunAdHoc(ctx, "monitor:baseline", cwd, prompt, turnengine.WithBypassPermissions(), turnengine.WithMaxTurns(1))
	if err != nil {
		return nil, fmt.Errorf("summarize baseline: %w", err)
	}

	var data struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &data); err != nil {
		return nil, fmt.Errorf("parse baseline summary: %w", err)
	}
	return &changeSummary{Summary: data.Summary, ChangeType: "baseline"}, nil
}

// summarizeChanges asks the Agent to diff two snapshots and classify the
// kind of change, defaulting to "content_update" if the model omits it.
func summarizeChanges(ctx context.Context, runner Runner, cwd, resourceName, resourceType, previousMarkdown, newMarkdown string) (*changeSummary, error) {
	prompt := fmt.Sprintf(
		"Compare the OLD and NEW versions of the page '%s' (type: %s). "+
			"Summarize what changed in 1-2 sentences.\n\n"+
			"Classify the change_type as ONE of: new_post, price_change, "+
			"new_release, new_job, new_deal, content_update, new_feature.\n\n"+
			"Respond with ONLY valid JSON, no markdown fences:\n"+
			`{"summary": "...", "change_type": "..."}`+"\n\n"+
			"--- OLD ---\n%s\n\n--- NEW ---\n%s",
		resourceName, resourceType,
		truncateChars(previousMarkdown, maxChangeContentChars),
		truncateChars(newMarkdown, maxChangeContentChars),
	)

	text, err := runner.RunAdHoc(ctx, "monitor:summarize", cwd, prompt, turnengine.WithBypassPermissions(), turnengine.WithMaxTurns(1))
	if err != nil {
		return nil, fmt.Errorf("summarize changes: %w", err)
	}

	var data struct {
		Summary    string `json:"summary"`
		ChangeType string `json:"change_type"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &data); err != nil {
		return nil, fmt.Errorf("parse change summary: %w", err)
	}
	if data.ChangeType == "" {
		data.ChangeType = "content_update"
	}
	return &changeSummary{Summary: data.Summary, ChangeType: data.ChangeType}, nil
}

// stripFences removes a leading/trailing ``` markdown code fence if
// present, matching the Agent's occasional habit of wrapping "plain JSON"
// responses in one anyway.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx != -1 {
		text = text[idx+1:]
	} else {
		text = text[3:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func truncateChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
