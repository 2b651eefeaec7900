package actions

import (
	"strings"
	"testing"
)

func TestParse_TwoSendFileActions(t *testing.T) {
	text := "Two files:\n```megobari\n" +
		`{"action":"send_file","path":"/tmp/a.pdf"}` + "\n```\nand\n```megobari\n" +
		`{"action":"send_file","path":"/tmp/b.pdf"}` + "\n```\nDone."

	cleaned, acts := Parse(text)
	if len(acts) != 2 {
		t.Fatalf("got %d actions, want 2", len(acts))
	}
	if stringField(acts[0], "path") != "/tmp/a.pdf" || stringField(acts[1], "path") != "/tmp/b.pdf" {
		t.Fatalf("unexpected action paths: %+v", acts)
	}
	if strings.Contains(cleaned, "megobari") {
		t.Fatalf("cleaned text still has a megobari fence: %q", cleaned)
	}
	if !strings.Contains(cleaned, "Two files:") || !strings.Contains(cleaned, "Done.") {
		t.Fatalf("cleaned text lost surrounding content: %q", cleaned)
	}
}

func TestParse_InvalidJSONLeftAlone(t *testing.T) {
	text := "Before\n```megobari\nthis is not json\n```\nAfter"
	cleaned, acts := Parse(text)
	if len(acts) != 0 {
		t.Fatalf("got %d actions, want 0", len(acts))
	}
	if !strings.Contains(cleaned, "megobari") {
		t.Fatalf("invalid block should remain verbatim: %q", cleaned)
	}
}

func TestParse_IsIdempotentOnCleanedText(t *testing.T) {
	text := "```megobari\n" + `{"action":"restart"}` + "\n```\nok"
	cleaned, _ := Parse(text)
	cleaned2, acts2 := Parse(cleaned)
	if cleaned2 != cleaned {
		t.Fatalf("re-parsing cleaned text changed it: %q vs %q", cleaned2, cleaned)
	}
	if len(acts2) != 0 {
		t.Fatalf("re-parsing cleaned text found actions: %+v", acts2)
	}
}

func TestParse_MissingActionKeyLeftAlone(t *testing.T) {
	text := "```megobari\n" + `{"path":"/tmp/a.pdf"}` + "\n```"
	cleaned, acts := Parse(text)
	if len(acts) != 0 {
		t.Fatalf("got %d actions, want 0", len(acts))
	}
	if !strings.Contains(cleaned, "megobari") {
		t.Fatalf("block missing action key should remain verbatim: %q", cleaned)
	}
}
