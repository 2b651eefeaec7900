package telegram

import (
	"html"
	"regexp"
	"strings"
)

// maxMessageLen is Telegram's hard message length cap.
const maxMessageLen = 4096

var (
	reCodeBlock  = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*\n)?(.*?)```")
	reInlineCode = regexp.MustCompile("`([^`\n]+)`")
	reBold       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalic     = regexp.MustCompile(`(?:^|[^*])\*([^*\n]+)\*(?:[^*]|$)`)
)

// toTelegramHTML renders the agent's Markdown-ish plain text as Telegram's
// restricted HTML subset (b/i/code/pre only), escaping everything else so
// stray angle brackets in tool output never break the parse_mode=HTML
// request, matching formatting.py's TelegramFormatter contract.
func toTelegramHTML(text string) string {
	var out strings.Builder
	rest := text
	for {
		loc := reCodeBlock.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(formatInline(rest))
			break
		}
		out.WriteString(formatInline(rest[:loc[0]]))
		body := rest[loc[2]:loc[3]]
		out.WriteString("<pre>")
		out.WriteString(html.EscapeString(strings.Trim(body, "\n")))
		out.WriteString("</pre>")
		rest = rest[loc[1]:]
	}
	return out.String()
}

func formatInline(text string) string {
	escaped := html.EscapeString(text)
	escaped = reInlineCode.ReplaceAllString(escaped, "<code>$1</code>")
	escaped = reBold.ReplaceAllString(escaped, "<b>$1</b>")
	escaped = reItalic.ReplaceAllStringFunc(escaped, func(m string) string {
		sub := reItalic.FindStringSubmatch(m)
		return strings.Replace(m, "*"+sub[1]+"*", "<i>"+sub[1]+"</i>", 1)
	})
	return escaped
}

// splitForSend breaks text into chunks no longer than maxMessageLen,
// preferring to split on newline boundaries.
func splitForSend(text string) []string {
	if len(text) <= maxMessageLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > maxMessageLen {
		cut := strings.LastIndex(text[:maxMessageLen], "\n")
		if cut <= 0 {
			cut = maxMessageLen
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
		text = strings.TrimPrefix(text, "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
