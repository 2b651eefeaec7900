package store

import "time"

// User is a Telegram user the bridge has exchanged messages with.
type User struct {
	ID         int64
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Persona is a named combination of system-prompt additions, MCP servers,
// and skill priority order.
type Persona struct {
	ID           int64
	Name         string
	Description  string
	SystemPrompt string
	MCPServers   []string
	Skills       []string
	Config       map[string]any
	IsDefault    bool
	CreatedAt    time.Time
}

// Message is one turn's worth of conversation history, tracked for
// eventual summarization.
type Message struct {
	ID          int64
	SessionName string
	Role        string // "user" or "assistant"
	Content     string
	UserID      int64
	Summarized  bool
	CreatedAt   time.Time
}

// ConversationSummary is a periodic or milestone summary of a session.
type ConversationSummary struct {
	ID           int64
	SessionName  string
	UserID       int64
	PersonaID    int64
	Summary      string
	ShortSummary string
	Topics       []string
	MessageCount int
	IsMilestone  bool
	CreatedAt    time.Time
}

// UsageRecord is one query's cost/turn/token accounting.
type UsageRecord struct {
	ID           int64
	SessionName  string
	CostUSD      float64
	NumTurns     int
	DurationMS   int64
	InputTokens  int64
	OutputTokens int64
	UserID       int64
	CreatedAt    time.Time
}

// Memory is a long-term factual note, scoped per user and de-duplicated by
// (user, category, key).
type Memory struct {
	ID        int64
	UserID    int64
	Category  string
	Key       string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CronJob is a scheduled prompt that fires on a 5-field cron expression.
type CronJob struct {
	ID             int64
	Name           string
	CronExpression string
	Prompt         string
	SessionName    string
	Isolated       bool
	Enabled        bool
	Timezone       string
	CreatedAt      time.Time
	LastRunAt      *time.Time
}

// HeartbeatCheck is a recurring "is everything still okay" prompt run on
// the scheduler's heartbeat cadence.
type HeartbeatCheck struct {
	ID        int64
	Name      string
	Prompt    string
	Enabled   bool
	CreatedAt time.Time
}

// DashboardToken is a bearer token for the read-only dashboard API. Only
// its SHA-256 hash and an 8-char prefix (for display) are stored.
type DashboardToken struct {
	ID          int64
	ExternalID  string // xid, sortable, safe to surface in Dashboard API responses
	Name        string
	TokenHash   string
	TokenPrefix string
	Enabled     bool
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// MonitorTopic groups entities under one watch theme, e.g. "competitors".
type MonitorTopic struct {
	ID          int64
	Name        string
	Description string
	Enabled     bool
	CreatedAt   time.Time
}

// MonitorEntity is a company/person/project being watched within a topic.
type MonitorEntity struct {
	ID          int64
	TopicID     int64
	Name        string
	URL         string
	EntityType  string
	Description string
	Enabled     bool
	CreatedAt   time.Time
}

// MonitorResource is one concrete fetchable URL belonging to an entity
// (blog, changelog, GitHub repo, pricing page, ...).
type MonitorResource struct {
	ID            int64
	TopicID       int64
	EntityID      int64
	Name          string
	URL           string
	ResourceType  string
	Enabled       bool
	LastCheckedAt *time.Time
	LastChangedAt *time.Time
	CreatedAt     time.Time
}

// MonitorSnapshot is one fetch's content hash and rendered markdown.
type MonitorSnapshot struct {
	ID              int64
	ExternalID      string // xid; digests and the dashboard refer to the snapshot by ID instead
	TopicID         int64
	EntityID        int64
	ResourceID      int64
	ContentHash     string
	ContentMarkdown string
	HasChanges      bool
	FetchedAt       time.Time
}

// MonitorDigest is a synthesized summary of a detected change.
type MonitorDigest struct {
	ID         int64
	ExternalID string // xid; not printed in Telegram digest messages or served by the Dashboard API
	TopicID    int64
	EntityID   int64
	ResourceID int64
	SnapshotID int64
	Summary    string
	ChangeType string
	CreatedAt  time.Time
}

// MonitorSubscriber is a notification channel (Slack webhook, Telegram
// chat) subscribed to a topic/entity/resource's digests.
type MonitorSubscriber struct {
	ID            int64
	ChannelType   string
	ChannelConfig string
	TopicID       int64
	EntityID      int64
	ResourceID    int64
	Enabled       bool
	CreatedAt     time.Time
}
