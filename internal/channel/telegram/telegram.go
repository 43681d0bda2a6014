// Package telegram adapts the Telegram Bot API webhook flavour to the
// channel layer.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Platform is the registry name of this adapter
const Platform = "telegram"

// SecretHeader carries the secret_token registered with setWebhook
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// allowedUpdates are the update kinds requested from the Bot API
var allowedUpdates = []string{"message", "edited_message", "channel_post", "edited_channel_post", "callback_query"}

func init() {
	channel.RegisterChannel(Platform, New)
}

// Adapter implements channel.Adapter for Telegram
type Adapter struct {
	token        string
	secret       string
	bot          *tgbotapi.BotAPI
	client       *http.Client
	fileEndpoint string
}

var (
	_ channel.Adapter              = (*Adapter)(nil)
	_ channel.FileURLResolver      = (*Adapter)(nil)
	_ channel.MediaDownloader      = (*Adapter)(nil)
	_ channel.TypingIndicator      = (*Adapter)(nil)
	_ channel.CallbackAcknowledger = (*Adapter)(nil)
	_ channel.WebhookRegistrar     = (*Adapter)(nil)
)

// New is the registry constructor
func New(cfg channel.Config) channel.Adapter {
	return NewAdapter(cfg)
}

// NewAdapter builds a Telegram adapter. No request is made until the first
// send; use HealthCheck to validate the token.
func NewAdapter(cfg channel.Config) *Adapter {
	endpoint := tgbotapi.APIEndpoint
	fileEndpoint := tgbotapi.FileEndpoint
	if cfg.APIBaseURL != "" {
		base := strings.TrimRight(cfg.APIBaseURL, "/")
		endpoint = base + "/bot%s/%s"
		fileEndpoint = base + "/file/bot%s/%s"
	}

	client := cfg.HTTPClientOrDefault()
	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: client,
		Buffer: constants.MessageChannelBufferSize,
	}
	bot.SetAPIEndpoint(endpoint)

	return &Adapter{
		token:        cfg.Token,
		secret:       cfg.SecretToken,
		bot:          bot,
		client:       client,
		fileEndpoint: fileEndpoint,
	}
}

// Platform returns "telegram"
func (a *Adapter) Platform() string {
	return Platform
}

// VerifyWebhook checks the secret token header. Without a configured secret
// every request is accepted.
func (a *Adapter) VerifyWebhook(r *http.Request) channel.WebhookVerification {
	if a.secret == "" {
		return channel.WebhookVerification{Valid: true}
	}
	got := r.Header.Get(SecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.secret)) != 1 {
		return channel.WebhookVerification{Error: "invalid secret token"}
	}
	return channel.WebhookVerification{Valid: true}
}

// ParseWebhook translates one Update. Messages, channel posts (and their
// edits) and callback queries are understood; anything else wraps
// channel.ErrNoMessage.
func (a *Adapter) ParseWebhook(r *http.Request) (*channel.InboundMessage, error) {
	body, err := channel.ReadBody(r)
	if err != nil {
		return nil, err
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("failed to decode telegram update: %w", err)
	}

	msg, err := translateUpdate(update)
	if err != nil {
		return nil, err
	}
	msg.Raw = body

	logger.WithFields(logrus.Fields{
		"platform":    Platform,
		"chat_id":     msg.ChatID,
		"chat_type":   msg.ChatType,
		"message_id":  msg.ID,
		"content_len": len(msg.Content),
		"media":       len(msg.Media),
	}).Debug("received-telegram-update-parsed")

	return msg, nil
}

// translateUpdate maps one Update to a message. Shared by webhooks and
// long polling.
func translateUpdate(update tgbotapi.Update) (*channel.InboundMessage, error) {
	var (
		msg *channel.InboundMessage
		err error
	)
	switch {
	case update.Message != nil:
		msg, err = parseMessage(update.Message)
	case update.EditedMessage != nil:
		msg, err = parseMessage(update.EditedMessage)
		if msg != nil {
			msg.Metadata["edited"] = "true"
		}
	case update.ChannelPost != nil:
		msg, err = parseMessage(update.ChannelPost)
	case update.EditedChannelPost != nil:
		msg, err = parseMessage(update.EditedChannelPost)
		if msg != nil {
			msg.Metadata["edited"] = "true"
		}
	case update.CallbackQuery != nil:
		msg, err = parseCallback(update.CallbackQuery)
	default:
		return nil, fmt.Errorf("update %d: %w", update.UpdateID, channel.ErrNoMessage)
	}
	if err != nil {
		return nil, err
	}

	msg.Metadata["update_id"] = strconv.Itoa(update.UpdateID)
	return msg, nil
}

func parseMessage(m *tgbotapi.Message) (*channel.InboundMessage, error) {
	from := m.From
	// channel posts are signed by the channel itself
	if from == nil && m.SenderChat != nil {
		from = &tgbotapi.User{ID: m.SenderChat.ID, FirstName: m.SenderChat.Title, UserName: m.SenderChat.UserName}
	}
	if from == nil {
		return nil, fmt.Errorf("message without sender: %w", channel.ErrNoMessage)
	}
	if m.Chat == nil {
		return nil, fmt.Errorf("message without chat: %w", channel.ErrNoMessage)
	}

	media := extractMedia(m)
	content := m.Text
	if m.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += m.Caption
	}
	if content == "" && len(media) > 0 {
		content = "[" + placeholder(m) + "]"
	}
	if content == "" {
		return nil, fmt.Errorf("message %d has no text or media: %w", m.MessageID, channel.ErrNoMessage)
	}

	msg := &channel.InboundMessage{
		ID:             strconv.Itoa(m.MessageID),
		Channel:        Platform,
		SenderID:       senderID(from),
		SenderName:     displayName(from),
		SenderUsername: from.UserName,
		ChatID:         strconv.FormatInt(m.Chat.ID, 10),
		ChatType:       chatType(m.Chat.Type),
		Content:        content,
		Media:          media,
		Metadata: map[string]string{
			"chat_type": m.Chat.Type,
			"is_bot":    strconv.FormatBool(from.IsBot),
		},
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = strconv.Itoa(m.ReplyToMessage.MessageID)
	}
	if cmd := m.Command(); cmd != "" {
		msg.Metadata[channel.MetaCommand] = cmd
	}
	return msg, nil
}

func parseCallback(q *tgbotapi.CallbackQuery) (*channel.InboundMessage, error) {
	if q.From == nil {
		return nil, fmt.Errorf("callback without sender: %w", channel.ErrNoMessage)
	}

	msg := &channel.InboundMessage{
		ID:             q.ID,
		Channel:        Platform,
		SenderID:       senderID(q.From),
		SenderName:     displayName(q.From),
		SenderUsername: q.From.UserName,
		ChatID:         strconv.FormatInt(q.From.ID, 10),
		ChatType:       channel.ChatPrivate,
		Content:        q.Data,
		Metadata: map[string]string{
			channel.MetaCallbackQueryID: q.ID,
			"callback_data":             q.Data,
			"chat_type":                 "private",
			"is_bot":                    strconv.FormatBool(q.From.IsBot),
		},
		Timestamp: time.Now(),
	}
	if q.Message != nil {
		msg.ReplyTo = strconv.Itoa(q.Message.MessageID)
		if q.Message.Chat != nil {
			msg.ChatID = strconv.FormatInt(q.Message.Chat.ID, 10)
			msg.ChatType = chatType(q.Message.Chat.Type)
			msg.Metadata["chat_type"] = q.Message.Chat.Type
		}
	}
	return msg, nil
}

// senderID is "<numeric id>|<username>", or just the numeric id when the
// user has no username. Allowlists may match either half.
func senderID(u *tgbotapi.User) string {
	id := strconv.FormatInt(u.ID, 10)
	if u.UserName == "" {
		return id
	}
	return id + "|" + u.UserName
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

func chatType(t string) channel.ChatType {
	switch t {
	case "private":
		return channel.ChatPrivate
	case "channel":
		return channel.ChatChannel
	default:
		return channel.ChatGroup
	}
}

// placeholder names the first attachment in extractMedia order. Voice notes
// share MediaAudio with audio files, so it reads the message, not the type.
func placeholder(m *tgbotapi.Message) string {
	switch {
	case len(m.Photo) > 0:
		return "photo"
	case m.Video != nil:
		return string(channel.MediaVideo)
	case m.Audio != nil:
		return string(channel.MediaAudio)
	case m.Voice != nil:
		return "voice"
	case m.Document != nil:
		return string(channel.MediaDocument)
	default:
		return string(channel.MediaSticker)
	}
}

// extractMedia lists attachments. URL holds the file_id; resolve it with
// GetFileURL before downloading.
func extractMedia(m *tgbotapi.Message) []channel.MediaAttachment {
	var media []channel.MediaAttachment

	if len(m.Photo) > 0 {
		best := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		media = append(media, channel.MediaAttachment{
			Type:    channel.MediaImage,
			URL:     best.FileID,
			Size:    int64(best.FileSize),
			Caption: m.Caption,
		})
	}
	if m.Video != nil {
		media = append(media, channel.MediaAttachment{
			Type:     channel.MediaVideo,
			URL:      m.Video.FileID,
			MimeType: m.Video.MimeType,
			Size:     int64(m.Video.FileSize),
			Caption:  m.Caption,
		})
	}
	if m.Audio != nil {
		media = append(media, channel.MediaAttachment{
			Type:     channel.MediaAudio,
			URL:      m.Audio.FileID,
			MimeType: m.Audio.MimeType,
			Size:     int64(m.Audio.FileSize),
		})
	}
	if m.Voice != nil {
		media = append(media, channel.MediaAttachment{
			Type:     channel.MediaAudio,
			URL:      m.Voice.FileID,
			MimeType: m.Voice.MimeType,
			Size:     int64(m.Voice.FileSize),
		})
	}
	if m.Document != nil {
		media = append(media, channel.MediaAttachment{
			Type:     channel.MediaDocument,
			URL:      m.Document.FileID,
			Filename: m.Document.FileName,
			MimeType: m.Document.MimeType,
			Size:     int64(m.Document.FileSize),
			Caption:  m.Caption,
		})
	}
	if m.Sticker != nil {
		media = append(media, channel.MediaAttachment{
			Type: channel.MediaSticker,
			URL:  m.Sticker.FileID,
			Size: int64(m.Sticker.FileSize),
		})
	}
	return media
}

// SendMessage splits content to the Telegram limit and sends each chunk.
// Only the first chunk replies to msg.ReplyTo. Chunks rejected for bad
// markup are resent as plain text.
func (a *Adapter) SendMessage(ctx context.Context, msg channel.OutboundMessage) channel.SendResult {
	if a.token == "" {
		return channel.Failed("telegram bot token not configured", nil)
	}
	if msg.ChatID == "" {
		return channel.Failed("chat ID is required for Telegram", nil)
	}

	replyTo, _ := strconv.Atoi(msg.ReplyTo)
	chunks := channel.SplitMessage(msg.Content, constants.MaxTelegramMessageLength)

	var firstID string
	for i, chunk := range chunks {
		if chunk == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return channel.Failed("send cancelled", err)
		}

		reply := 0
		if i == 0 {
			reply = replyTo
		}
		sent, err := a.sendChunk(msg.ChatID, chunk, msg.ParseMode, reply)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"chat_id": msg.ChatID,
				"chunk":   i,
				"error":   err,
			}).Error("failed-to-send-message-to-telegram")
			return channel.Failed(fmt.Sprintf("failed to send chunk %d to chat %s", i, msg.ChatID), err)
		}
		if firstID == "" {
			firstID = strconv.Itoa(sent.MessageID)
		}
	}

	logger.WithFields(logrus.Fields{
		"chat_id": msg.ChatID,
		"chunks":  len(chunks),
	}).Info("message-sent-to-telegram")

	return channel.SendResult{Success: true, MessageID: firstID}
}

func (a *Adapter) sendChunk(chatID, chunk string, mode channel.ParseMode, replyTo int) (tgbotapi.Message, error) {
	cfg, err := newMessageConfig(chatID)
	if err != nil {
		return tgbotapi.Message{}, err
	}
	cfg.ReplyToMessageID = replyTo

	switch mode {
	case channel.ParsePlain:
		cfg.Text = chunk
		return a.bot.Send(cfg)
	case channel.ParseHTML:
		cfg.Text = chunk
		cfg.ParseMode = tgbotapi.ModeHTML
	default:
		cfg.Text = markdownToHTML(chunk)
		cfg.ParseMode = tgbotapi.ModeHTML
	}

	sent, err := a.bot.Send(cfg)
	if err == nil || !isParseError(err) {
		return sent, err
	}

	logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"error":   err,
	}).Warn("telegram-rejected-markup-retrying-as-plain-text")

	cfg.Text = chunk
	cfg.ParseMode = ""
	return a.bot.Send(cfg)
}

func newMessageConfig(chatID string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(chatID, "@") {
		return tgbotapi.NewMessageToChannel(chatID, ""), nil
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("invalid chat ID format: %w", err)
	}
	return tgbotapi.NewMessage(id, ""), nil
}

func isParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "parse")
}

// FormatContent renders content for Telegram. Markdown becomes the HTML
// subset Telegram accepts; HTML and plain text pass through.
func (a *Adapter) FormatContent(content string, mode channel.ParseMode) string {
	switch mode {
	case channel.ParseHTML, channel.ParsePlain:
		return content
	default:
		return markdownToHTML(content)
	}
}

// GetFileURL resolves a file_id into a direct download URL
func (a *Adapter) GetFileURL(ctx context.Context, fileID string) (string, error) {
	file, err := a.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to resolve telegram file %s: %w", fileID, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("telegram file %s has no path", fileID)
	}
	return fmt.Sprintf(a.fileEndpoint, a.token, file.FilePath), nil
}

// DownloadMedia resolves the attachment's file_id and fetches the bytes
func (a *Adapter) DownloadMedia(ctx context.Context, media channel.MediaAttachment) ([]byte, error) {
	url, err := a.GetFileURL(ctx, media.URL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download telegram file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read telegram file: %w", err)
	}
	return data, nil
}

// SendTypingIndicator shows "typing..." for about five seconds
func (a *Adapter) SendTypingIndicator(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID format: %w", err)
	}
	if _, err := a.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("failed to send typing indicator: %w", err)
	}
	return nil
}

// AcknowledgeCallback answers a callback query so the client stops its
// loading spinner. Messages that are not callbacks are ignored.
func (a *Adapter) AcknowledgeCallback(ctx context.Context, msg *channel.InboundMessage) error {
	id := msg.Meta(channel.MetaCallbackQueryID)
	if id == "" {
		return nil
	}
	if _, err := a.bot.Request(tgbotapi.NewCallback(id, "")); err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}

// SetWebhook registers url with Telegram. A non-empty secret is echoed back
// by Telegram in SecretHeader on every delivery.
func (a *Adapter) SetWebhook(ctx context.Context, url string) error {
	params := tgbotapi.Params{"url": url}
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("failed to encode allowed updates: %w", err)
	}
	if a.secret != "" {
		params["secret_token"] = a.secret
	}
	if _, err := a.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("failed to set telegram webhook: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"url":   url,
		"token": logger.MaskSecret(a.token),
	}).Info("telegram-webhook-registered")
	return nil
}

// HealthCheck calls getMe
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	me, err := a.bot.GetMe()
	if err != nil {
		return fmt.Errorf("telegram getMe failed: %w", err)
	}
	logger.WithField("bot_username", me.UserName).Debug("telegram-health-check-ok")
	return nil
}
