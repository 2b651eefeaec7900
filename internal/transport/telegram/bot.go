// Package telegram is the concrete Telegram Bot API adapter for the
// abstract transport.Context/transport.Sender interfaces, grounded on
// original_source/src/megobari/telegram_transport.py and built on
// go-telegram-bot-api/telegram-bot-api/v5 the way the rest of the pack
// wires that library (long polling, exponential-backoff reconnect).
package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/transport"
)

// Handler processes one inbound update already wrapped as a
// transport.Context. Wired by the caller (command surface + Turn Engine).
type Handler interface {
	Handle(ctx context.Context, tc transport.Context) error
}

// Access gates which Telegram users may talk to the bridge: exactly one
// of UserID/Username is set in normal operation; in Discovery mode the Bot
// logs every sender's id and replies with it instead of handling the
// message, for first-run setup.
type Access struct {
	UserID    int64
	Username  string
	Discovery bool
}

func (a Access) allows(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	if a.Discovery {
		return true
	}
	if a.UserID != 0 {
		return user.ID == a.UserID
	}
	if a.Username != "" {
		return user.UserName == a.Username
	}
	return false
}

// Bot wraps a tgbotapi.BotAPI as the single Telegram transport for the
// bridge's one allowed user.
type Bot struct {
	api     *tgbotapi.BotAPI
	access  Access
	handler Handler
	log     zerolog.Logger

	registry *sessionstore.Registry
}

// New constructs a Bot. Dial the Telegram API immediately so a bad token
// fails fast at startup rather than on the first update.
func New(token string, access Access, registry *sessionstore.Registry, handler Handler, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	return &Bot{
		api:      api,
		access:   access,
		handler:  handler,
		registry: registry,
		log:      log.With().Str("component", "telegram").Logger(),
	}, nil
}

// Start runs the long-poll loop until ctx is cancelled, reconnecting with
// exponential backoff on stalls or disconnects.
func (b *Bot) Start(ctx context.Context) error {
	b.log.Info().Str("bot_username", b.api.Self.UserName).Msg("telegram bot started")

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := b.api.GetUpdatesChan(u)

		err := b.poll(ctx, updates)
		b.api.StopReceivingUpdates()

		if err == nil {
			return nil
		}
		b.log.Warn().Err(err).Dur("backoff", backoff).Msg("telegram poll disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// poll reads from updates until ctx is done, the channel closes, or no
// update arrives within 2.5x the long-poll timeout (stall detection, since
// the library blocks rather than closing the channel on a dead socket).
func (b *Bot) poll(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	const stallTimeout = 150 * time.Second
	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)
			b.dispatch(ctx, update)
		case <-timer.C:
			return fmt.Errorf("no updates received for %v", stallTimeout)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	from := update.Message.From
	if b.access.Discovery {
		if from == nil {
			return
		}
		b.log.Info().Int64("user_id", from.ID).Str("username", from.UserName).Msg("discovery: sender id")
		reply := tgbotapi.NewMessage(update.FromChat().ID, fmt.Sprintf("Your user ID: %d\nUsername: %s", from.ID, from.UserName))
		if _, err := b.api.Send(reply); err != nil {
			b.log.Error().Err(err).Msg("send discovery reply")
		}
		return
	}
	if !b.access.allows(from) {
		b.log.Warn().Int64("user_id", userIDOf(from)).Msg("rejected message from disallowed user")
		return
	}

	tc := &msgContext{bot: b, update: update}
	if err := b.handler.Handle(ctx, tc); err != nil {
		b.log.Error().Err(err).Msg("handle update")
	}
}

func userIDOf(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// downloadDir resolves the directory incoming media should be saved to:
// the active session's working directory, so downloaded files are visible
// to whatever agent turn prompted the user to send them.
func (b *Bot) downloadDir() string {
	if b.registry == nil {
		return "."
	}
	if s := b.registry.Current(); s != nil && s.Cwd != "" {
		return s.Cwd
	}
	return "."
}

// -- transport.Sender --

func (b *Bot) SendToChat(ctx context.Context, chatID int64, text string, formatted bool) error {
	for _, chunk := range splitForSend(text) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if formatted {
			msg.Text = toTelegramHTML(chunk)
			msg.ParseMode = tgbotapi.ModeHTML
		}
		if _, err := b.api.Send(msg); err != nil {
			return fmt.Errorf("send to chat: %w", err)
		}
	}
	return nil
}

func (b *Bot) SendDocumentToChat(ctx context.Context, chatID int64, path, filename, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	if filename != "" {
		doc.File = tgbotapi.FilePath(path)
	}
	if caption != "" {
		doc.Caption = caption
	}
	_, err := b.api.Send(doc)
	return err
}

func (b *Bot) DefaultChatID() int64 {
	return b.access.UserID
}

func (b *Bot) MaxMessageLength() int {
	return maxMessageLen
}

func (b *Bot) TransportName() string {
	return "telegram"
}
