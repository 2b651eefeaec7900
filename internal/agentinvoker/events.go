package agentinvoker

// EventKind discriminates the typed event stream the Agent Invoker yields
// for one turn.
type EventKind string

const (
	EventInit    EventKind = "init"
	EventText    EventKind = "text"
	EventToolUse EventKind = "tool_use"
	EventResult  EventKind = "result"
	EventSystem  EventKind = "system"
)

// Event is one item in the Invoke event stream. Only the fields relevant
// to Kind are populated.
type Event struct {
	Kind EventKind

	// EventInit
	ThreadID string

	// EventText
	Text string

	// EventToolUse
	ToolName  string
	ToolInput map[string]any

	// EventResult
	ResultText  string
	NewThreadID string
	Usage       Usage

	// EventSystem: an unrecognized stream-event type, preserved so the
	// turn can continue instead of aborting (spec §7's "Agent parse
	// error" policy).
	Subtype string
	Raw     map[string]any
}

// Usage is the cost/turn/token accounting reported on the terminal result
// event.
type Usage struct {
	CostUSD      float64
	NumTurns     int
	DurationMS   int64
	InputTokens  int64
	OutputTokens int64
}
