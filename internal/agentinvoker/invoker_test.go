package agentinvoker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestInvoker(t *testing.T) *Invoker {
	t.Helper()
	return New(os.Args[0], []string{"-test.run=TestAgentInvoker_HelperProcess", "--"}, zerolog.Nop())
}

func TestInvoke_FullEventSequence(t *testing.T) {
	t.Setenv("GO_WANT_AGENTINVOKER_HELPER", "1")
	inv := newTestInvoker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, errs := inv.Invoke(ctx, Request{Prompt: "hello", SystemPrompt: "be nice", Cwd: "."})

	var kinds []EventKind
	var sawResult Event
	for ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventResult {
			sawResult = ev
		}
	}
	if err, ok := <-errs; ok && err != nil {
		t.Fatalf("unexpected process error: %v", err)
	}

	want := []EventKind{EventInit, EventText, EventToolUse, EventResult}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("event[%d] = %s, want %s", i, kinds[i], k)
		}
	}
	if sawResult.NewThreadID == "" {
		t.Fatal("expected result event to carry a new thread id")
	}
	if sawResult.Usage.CostUSD <= 0 {
		t.Fatal("expected non-zero cost in usage")
	}
}

func TestInvoke_UnknownEventTypeBecomesSystem(t *testing.T) {
	t.Setenv("GO_WANT_AGENTINVOKER_HELPER", "1")
	t.Setenv("HELPER_EMIT_UNKNOWN", "1")
	inv := newTestInvoker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, _ := inv.Invoke(ctx, Request{Prompt: "hi", Cwd: "."})

	var sawSystem bool
	for ev := range events {
		if ev.Kind == EventSystem && ev.Subtype == "rate_limit_event" {
			sawSystem = true
		}
	}
	if !sawSystem {
		t.Fatal("expected unknown event type to degrade to an opaque system event")
	}
}

// TestAgentInvoker_HelperProcess is not a real test; it's a subprocess
// entry point that speaks the agent CLI's stream-json protocol, driven by
// the invoker tests above via os.Args[0] re-exec.
func TestAgentInvoker_HelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_AGENTINVOKER_HELPER") != "1" {
		return
	}
	defer os.Exit(0)

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	line := func(s string) {
		fmt.Fprintln(w, s)
		w.Flush()
	}

	line(`{"type":"system","subtype":"init","session_id":"thread-abc"}`)
	if os.Getenv("HELPER_EMIT_UNKNOWN") == "1" {
		line(`{"type":"rate_limit_event","remaining":42}`)
	}
	line(`{"type":"assistant","message":{"content":[{"type":"text","text":"hi there"}]}}`)
	line(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"/tmp/x.py"}}]}}`)
	line(`{"type":"result","result":"hi there","session_id":"thread-abc-2","total_cost_usd":0.05,"num_turns":2,"duration_api_ms":1200,"usage":{"input_tokens":100,"output_tokens":40}}`)
}
