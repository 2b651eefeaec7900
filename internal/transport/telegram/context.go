package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/megobari/megobari/internal/transport"
)

// msgHandle is the concrete transport.MessageHandle for this adapter:
// enough to target a later edit or delete.
type msgHandle struct {
	chatID    int64
	messageID int
}

// msgContext wraps one tgbotapi.Update as a transport.Context.
type msgContext struct {
	bot    *Bot
	update tgbotapi.Update
}

var _ transport.Context = (*msgContext)(nil)

func (m *msgContext) message() *tgbotapi.Message { return m.update.Message }

// Args splits the text of a "/command arg1 arg2" message, matching
// python-telegram-bot's CommandHandler-populated context.args.
func (m *msgContext) Args() []string {
	msg := m.message()
	if msg == nil || msg.Text == "" || !strings.HasPrefix(msg.Text, "/") {
		return nil
	}
	fields := strings.Fields(msg.Text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

func (m *msgContext) Text() string {
	if msg := m.message(); msg != nil {
		return msg.Text
	}
	return ""
}

func (m *msgContext) ChatID() int64 {
	return m.update.FromChat().ID
}

func (m *msgContext) MessageID() int64 {
	if msg := m.message(); msg != nil {
		return int64(msg.MessageID)
	}
	return 0
}

func (m *msgContext) UserID() int64 {
	if u := m.update.SentFrom(); u != nil {
		return u.ID
	}
	return 0
}

func (m *msgContext) Username() string {
	if u := m.update.SentFrom(); u != nil {
		return u.UserName
	}
	return ""
}

func (m *msgContext) FirstName() string {
	if u := m.update.SentFrom(); u != nil {
		return u.FirstName
	}
	return ""
}

func (m *msgContext) LastName() string {
	if u := m.update.SentFrom(); u != nil {
		return u.LastName
	}
	return ""
}

func (m *msgContext) Caption() string {
	if msg := m.message(); msg != nil {
		return msg.Caption
	}
	return ""
}

// -- messaging --

func (m *msgContext) Reply(ctx context.Context, text string, formatted bool) (transport.MessageHandle, error) {
	chunks := splitForSend(text)
	var last tgbotapi.Message
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(m.ChatID(), chunk)
		if i == 0 {
			msg.ReplyToMessageID = int(m.MessageID())
		}
		if formatted {
			msg.Text = toTelegramHTML(chunk)
			msg.ParseMode = tgbotapi.ModeHTML
		}
		sent, err := m.bot.api.Send(msg)
		if err != nil {
			return nil, fmt.Errorf("telegram reply: %w", err)
		}
		last = sent
	}
	return msgHandle{chatID: last.Chat.ID, messageID: last.MessageID}, nil
}

func (m *msgContext) ReplyDocument(ctx context.Context, path, filename, caption string) error {
	doc := tgbotapi.NewDocument(m.ChatID(), tgbotapi.FilePath(path))
	if caption != "" {
		doc.Caption = caption
	}
	_, err := m.bot.api.Send(doc)
	if err != nil {
		return fmt.Errorf("telegram reply document: %w", err)
	}
	return nil
}

func (m *msgContext) ReplyPhoto(ctx context.Context, path, caption string) error {
	photo := tgbotapi.NewPhoto(m.ChatID(), tgbotapi.FilePath(path))
	if caption != "" {
		photo.Caption = caption
	}
	_, err := m.bot.api.Send(photo)
	if err != nil {
		return fmt.Errorf("telegram reply photo: %w", err)
	}
	return nil
}

func (m *msgContext) SendMessage(ctx context.Context, text string) error {
	return m.bot.SendToChat(ctx, m.ChatID(), text, false)
}

func (m *msgContext) EditMessage(ctx context.Context, handle transport.MessageHandle, text string, formatted bool) error {
	h, ok := handle.(msgHandle)
	if !ok {
		return fmt.Errorf("telegram edit: invalid handle %T", handle)
	}
	body := text
	edit := tgbotapi.NewEditMessageText(h.chatID, h.messageID, body)
	if formatted {
		edit.Text = toTelegramHTML(body)
		edit.ParseMode = tgbotapi.ModeHTML
	}
	_, err := m.bot.api.Send(edit)
	if err != nil {
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}

func (m *msgContext) DeleteMessage(ctx context.Context, handle transport.MessageHandle) error {
	h, ok := handle.(msgHandle)
	if !ok {
		return fmt.Errorf("telegram delete: invalid handle %T", handle)
	}
	_, err := m.bot.api.Request(tgbotapi.NewDeleteMessage(h.chatID, h.messageID))
	return err
}

// -- indicators --

func (m *msgContext) SendTyping(ctx context.Context) error {
	action := tgbotapi.NewChatAction(m.ChatID(), tgbotapi.ChatTyping)
	_, err := m.bot.api.Request(action)
	return err
}

// SetReaction mirrors the original's try/except swallow: a failed
// reaction is logged at debug level and never surfaced to the caller,
// since it is a cosmetic indicator.
func (m *msgContext) SetReaction(ctx context.Context, emoji string) error {
	reaction := "[]"
	if emoji != "" {
		reaction = fmt.Sprintf(`[{"type":"emoji","emoji":%q}]`, emoji)
	}
	params := tgbotapi.Params{}
	params["chat_id"] = strconv.FormatInt(m.ChatID(), 10)
	params["message_id"] = strconv.FormatInt(m.MessageID(), 10)
	params["reaction"] = reaction
	if _, err := m.bot.api.MakeRequest("setMessageReaction", params); err != nil {
		m.bot.log.Debug().Err(err).Str("emoji", emoji).Msg("set reaction failed")
	}
	return nil
}

// -- incoming media --

func (m *msgContext) DownloadPhoto(ctx context.Context) (string, error) {
	msg := m.message()
	if msg == nil || len(msg.Photo) == 0 {
		return "", nil
	}
	largest := msg.Photo[len(msg.Photo)-1]
	return m.downloadFile(largest.FileID, fmt.Sprintf("photo_%d%s", m.MessageID(), ".jpg"))
}

func (m *msgContext) DownloadDocument(ctx context.Context) (path, filename string, err error) {
	msg := m.message()
	if msg == nil || msg.Document == nil {
		return "", "", nil
	}
	filename = msg.Document.FileName
	if filename == "" {
		filename = fmt.Sprintf("document_%d", m.MessageID())
	}
	path, err = m.downloadFile(msg.Document.FileID, filename)
	return path, filename, err
}

func (m *msgContext) DownloadVoice(ctx context.Context) (string, error) {
	msg := m.message()
	if msg == nil || msg.Voice == nil {
		return "", nil
	}
	tmp, err := os.CreateTemp("", "voice-*.ogg")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp.Close()
	return m.downloadFileTo(msg.Voice.FileID, tmp.Name())
}

func (m *msgContext) downloadFile(fileID, filename string) (string, error) {
	dest := filepath.Join(m.bot.downloadDir(), filename)
	return m.downloadFileTo(fileID, dest)
}

func (m *msgContext) downloadFileTo(fileID, dest string) (string, error) {
	url, err := m.bot.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write destination: %w", err)
	}
	return dest, nil
}

// -- metadata --

func (m *msgContext) TransportName() string {
	return "telegram"
}

func (m *msgContext) MaxMessageLength() int {
	return maxMessageLen
}
