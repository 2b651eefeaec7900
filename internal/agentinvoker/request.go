package agentinvoker

// Request is everything one Invoke call needs to launch the agent CLI for
// a turn: the session's tunable configuration plus this turn's composed
// system prompt and user text.
type Request struct {
	Prompt       string
	SystemPrompt string
	Cwd          string
	ExtraDirs    []string

	ResumeThreadID string // empty ⇒ fresh session

	PermissionMode string
	ModelID        string
	ThinkingMode   string
	ThinkingBudget int
	EffortLevel    string
	MaxTurns       int
	MaxBudgetUSD   float64

	// MCPServers / Skills are echoed from the Recall Builder's persona
	// resolution onto the agent invocation.
	MCPServers []string
	Skills     []string
}
