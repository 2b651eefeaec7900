// Package summarizer periodically folds a session's message history into
// a short/full summary pair once enough unsummarized messages accumulate,
// so the Recall Builder has a bounded amount of context to replay rather
// than the full transcript. Grounded 1:1 on summarizer.py.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/store"
)

// SummaryThreshold is the default number of unsummarized messages that
// triggers a new summary (spec §4.6).
const SummaryThreshold = 20

const (
	maxMessageChars = 2000
	delimiter       = "---FULL---"
)

const summarizePromptTemplate = `Below is a recent conversation between a user and an AI assistant (megobari bot).
Produce two outputs separated by the exact delimiter "---FULL---":

1. First, a SHORT one-line summary (max 150 chars) capturing the essence.
2. Then the delimiter "---FULL---" on its own line.
3. Then a FULL summary (3-8 sentences) covering:
   - What was discussed and decided
   - Key technical details, file paths, or commands mentioned
   - Any pending tasks or next steps

Example format:
Implemented dark mode toggle and fixed CSS issues in settings page
---FULL---
The user requested a dark mode feature. We added a toggle component...

Output ONLY the two parts as described, nothing else.

--- CONVERSATION ---
%s
`

// Store is the subset of *store.Store the summarizer needs.
type Store interface {
	UnsummarizedCount(ctx context.Context, sessionName string) (int, error)
	UnsummarizedMessages(ctx context.Context, sessionName string) ([]*store.Message, error)
	CommitSummary(ctx context.Context, sum store.ConversationSummary, messageIDs []int64) (*store.ConversationSummary, error)
}

// SendFunc sends a prompt to the agent, outside the session being
// summarized, and returns its text response.
type SendFunc func(ctx context.Context, prompt string) (string, error)

// Summarizer runs the threshold-triggered summarization check.
type Summarizer struct {
	store     Store
	send      SendFunc
	threshold int
	log       zerolog.Logger
}

// New builds a Summarizer using the default SummaryThreshold.
func New(st Store, send SendFunc, log zerolog.Logger) *Summarizer {
	return &Summarizer{
		store:     st,
		send:      send,
		threshold: SummaryThreshold,
		log:       log.With().Str("component", "summarizer").Logger(),
	}
}

// WithThreshold overrides the default threshold, mainly for tests.
func (s *Summarizer) WithThreshold(n int) *Summarizer {
	s.threshold = n
	return s
}

// CheckAndSummarize summarizes a session's unsummarized messages if
// enough have accumulated. It reports whether a summary was created; a
// non-nil error always means no summary was committed. Any failure to
// reach the agent leaves the messages unsummarized for retry on a later
// turn (spec §4.6/§7) and is reported as (false, nil), not an error.
func (s *Summarizer) CheckAndSummarize(ctx context.Context, sessionName string, userID int64) (bool, error) {
	count, err := s.store.UnsummarizedCount(ctx, sessionName)
	if err != nil {
		return false, fmt.Errorf("count unsummarized: %w", err)
	}
	if count < s.threshold {
		return false, nil
	}

	messages, err := s.store.UnsummarizedMessages(ctx, sessionName)
	if err != nil {
		return false, fmt.Errorf("load unsummarized: %w", err)
	}
	if len(messages) == 0 {
		return false, nil
	}
	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}

	raw, err := s.send(ctx, fmt.Sprintf(summarizePromptTemplate, formatMessages(messages)))
	if err != nil {
		s.log.Warn().Err(err).Str("session", sessionName).Msg("failed to generate summary")
		return false, nil
	}

	short, full := parseSummary(raw)
	sum := store.ConversationSummary{
		SessionName:  sessionName,
		UserID:       userID,
		Summary:      full,
		ShortSummary: short,
		MessageCount: len(ids),
	}
	if _, err := s.store.CommitSummary(ctx, sum, ids); err != nil {
		return false, fmt.Errorf("commit summary: %w", err)
	}

	s.log.Info().Str("session", sessionName).Int("messages", len(ids)).Msg("created summary")
	return true, nil
}

// MaybeSummarizeBackground runs CheckAndSummarize in a detached
// goroutine, swallowing any error (fire-and-forget wrapper matching
// maybe_summarize_background).
func (s *Summarizer) MaybeSummarizeBackground(ctx context.Context, sessionName string, userID int64) {
	go func() {
		if _, err := s.CheckAndSummarize(ctx, sessionName, userID); err != nil {
			s.log.Debug().Err(err).Str("session", sessionName).Msg("background summarization failed")
		}
	}()
}

// formatMessages renders messages into a User:/Assistant: transcript,
// truncating any single message at maxMessageChars.
func formatMessages(messages []*store.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		prefix := "Assistant"
		if m.Role == "user" {
			prefix = "User"
		}
		content := m.Content
		if utf8.RuneCountInString(content) > maxMessageChars {
			content = truncateRunes(content, maxMessageChars) + "\n... [truncated]"
		}
		b.WriteString(prefix)
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

// parseSummary splits raw agent output into (short, full) per the
// delimiter contract, falling back to a derived short summary when the
// agent omits the delimiter.
func parseSummary(raw string) (short, full string) {
	if idx := strings.Index(raw, delimiter); idx >= 0 {
		short = strings.TrimSpace(raw[:idx])
		full = strings.TrimSpace(raw[idx+len(delimiter):])
		if utf8.RuneCountInString(short) > 200 {
			short = truncateRunes(short, 197) + "..."
		}
		return short, full
	}

	full = strings.TrimSpace(raw)
	if utf8.RuneCountInString(full) > 150 {
		head := truncateRunes(full, 150)
		if sp := strings.LastIndex(head, " "); sp > 0 {
			head = head[:sp]
		}
		short = head + "..."
	} else {
		short = full
	}
	return short, full
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
