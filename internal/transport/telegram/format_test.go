package telegram

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestToTelegramHTML_EscapesAndRendersCodeBlocks(t *testing.T) {
	got := toTelegramHTML("before <script> ```go\nfmt.Println(1)\n``` after")
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Fatalf("expected escaped angle brackets, got %q", got)
	}
	if !strings.Contains(got, "<pre>fmt.Println(1)</pre>") {
		t.Fatalf("expected rendered code block, got %q", got)
	}
}

func TestToTelegramHTML_InlineCodeAndBold(t *testing.T) {
	got := toTelegramHTML("run `ls -la` and **confirm**")
	if !strings.Contains(got, "<code>ls -la</code>") {
		t.Fatalf("expected inline code, got %q", got)
	}
	if !strings.Contains(got, "<b>confirm</b>") {
		t.Fatalf("expected bold, got %q", got)
	}
}

func TestSplitForSend_UnderLimitReturnsSingleChunk(t *testing.T) {
	chunks := splitForSend("short message")
	if len(chunks) != 1 || chunks[0] != "short message" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}

func TestSplitForSend_SplitsOnNewlineBoundary(t *testing.T) {
	line := strings.Repeat("a", 100) + "\n"
	text := strings.Repeat(line, maxMessageLen/len(line)+2)
	chunks := splitForSend(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > maxMessageLen {
			t.Fatalf("chunk exceeds limit: %d", len(c))
		}
	}
	if strings.Join(chunks, "\n") == "" {
		t.Fatal("unexpected empty rejoin")
	}
}

func TestAccess_Allows(t *testing.T) {
	byID := Access{UserID: 42}
	if !byID.allows(&tgbotapi.User{ID: 42}) {
		t.Fatal("expected id match to pass")
	}
	if byID.allows(&tgbotapi.User{ID: 7}) {
		t.Fatal("expected id mismatch to fail")
	}

	byUsername := Access{Username: "alice"}
	if !byUsername.allows(&tgbotapi.User{UserName: "alice"}) {
		t.Fatal("expected username match to pass")
	}

	discovery := Access{Discovery: true}
	if !discovery.allows(&tgbotapi.User{ID: 999}) {
		t.Fatal("expected discovery mode to allow any sender")
	}
	if discovery.allows(nil) {
		t.Fatal("expected nil user to always be rejected")
	}
}

func TestMsgContext_ArgsParsesCommand(t *testing.T) {
	mc := &msgContext{update: tgbotapi.Update{
		Message: &tgbotapi.Message{Text: "/heartbeat on 15"},
	}}
	args := mc.Args()
	if len(args) != 2 || args[0] != "on" || args[1] != "15" {
		t.Fatalf("unexpected args: %+v", args)
	}
}

func TestMsgContext_ArgsEmptyForPlainText(t *testing.T) {
	mc := &msgContext{update: tgbotapi.Update{
		Message: &tgbotapi.Message{Text: "just a message"},
	}}
	if args := mc.Args(); args != nil {
		t.Fatalf("expected nil args, got %+v", args)
	}
}
