package monitor

import (
	"strings"
	"testing"
)

func TestFormatDigestMessageNoChanges(t *testing.T) {
	msg := FormatDigestMessage(nil, "Nightly check")
	if msg != "🔍 Nightly check: No changes detected." {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestFormatDigestMessageListsEachDigest(t *testing.T) {
	digests := []Digest{
		{ResourceName: "Acme Pricing", Summary: "Raised prices.", ChangeType: "price_change"},
		{ResourceName: "Acme Blog", Summary: "New post.", ChangeType: "new_post"},
		{ResourceName: "Unknown Thing", Summary: "Something changed.", ChangeType: "some_unmapped_type"},
	}
	msg := FormatDigestMessage(digests, "Sweep")

	if !strings.Contains(msg, "Sweep: 3 change(s) found") {
		t.Fatalf("expected header with count, got: %q", msg)
	}
	if !strings.Contains(msg, "💰 <b>Acme Pricing</b>: Raised prices.") {
		t.Fatalf("expected price_change icon line, got: %q", msg)
	}
	if !strings.Contains(msg, "📝 <b>Acme Blog</b>: New post.") {
		t.Fatalf("expected new_post icon line, got: %q", msg)
	}
	if !strings.Contains(msg, "📄 <b>Unknown Thing</b>: Something changed.") {
		t.Fatalf("expected default icon for unmapped change_type, got: %q", msg)
	}
}
