// Package transport defines the platform-agnostic interface the Turn
// Engine, command surface, and Scheduler use to talk to whatever chat
// client the process is bridging. Concrete adapters (internal/transport/telegram)
// implement it against a specific wire protocol.
package transport

import "context"

// MessageHandle is an opaque reference to a previously sent message,
// usable for Edit/Delete. Its concrete type is adapter-specific (e.g. a
// Telegram message id); callers must not inspect it.
type MessageHandle any

// Context wraps one incoming update plus the means to reply to it. It is
// the only thing handler code (Turn Engine, command surface) touches —
// never the adapter's native request/response types.
type Context interface {
	// -- input data --

	Args() []string
	Text() string
	ChatID() int64
	MessageID() int64
	UserID() int64
	Username() string
	FirstName() string
	LastName() string
	Caption() string

	// -- messaging --

	Reply(ctx context.Context, text string, formatted bool) (MessageHandle, error)
	ReplyDocument(ctx context.Context, path, filename, caption string) error
	ReplyPhoto(ctx context.Context, path, caption string) error
	SendMessage(ctx context.Context, text string) error
	EditMessage(ctx context.Context, handle MessageHandle, text string, formatted bool) error
	DeleteMessage(ctx context.Context, handle MessageHandle) error

	// -- indicators --

	SendTyping(ctx context.Context) error
	SetReaction(ctx context.Context, emoji string) error

	// -- incoming media --

	DownloadPhoto(ctx context.Context) (string, error)
	DownloadDocument(ctx context.Context) (path, filename string, err error)
	DownloadVoice(ctx context.Context) (string, error)

	// -- metadata --

	TransportName() string
	MaxMessageLength() int
}

// Sender is the subset of Transport capability needed to push unsolicited
// messages to the default chat (Scheduler digests, heartbeat alerts,
// restart notices) without an inbound Context to reply to.
type Sender interface {
	SendToChat(ctx context.Context, chatID int64, text string, formatted bool) error
	SendDocumentToChat(ctx context.Context, chatID int64, path, filename, caption string) error
	DefaultChatID() int64
	MaxMessageLength() int
	TransportName() string
}
