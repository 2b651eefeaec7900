package monitor

import (
	"fmt"
	"strings"
)

var changeIcons = map[string]string{
	"new_post":       "📝",
	"price_change":   "💰",
	"new_release":    "🔄",
	"new_job":        "👥",
	"new_deal":       "🤝",
	"content_update": "📄",
	"new_feature":    "✨",
	"baseline":       "📋",
}

const defaultChangeIcon = "📄"

// FormatDigestMessage renders a run's digests into a single Telegram/Slack
// notification message.
func FormatDigestMessage(digests []Digest, runLabel string) string {
	if len(digests) == 0 {
		return fmt.Sprintf("🔍 %s: No changes detected.", runLabel)
	}

	lines := []string{fmt.Sprintf("🔍 %s: %d change(s) found\n", runLabel, len(digests))}
	for _, d := range digests {
		icon, ok := changeIcons[d.ChangeType]
		if !ok {
			icon = defaultChangeIcon
		}
		name := d.ResourceName
		if name == "" {
			name = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("%s <b>%s</b>: %s", icon, name, d.Summary))
	}
	return strings.Join(lines, "\n")
}
