// Package discord adapts Discord HTTP interactions to the channel layer.
//
// Discord expects every interaction to be answered within three seconds.
// DeferredAck returns the body for that synchronous answer; the real reply
// is delivered afterwards with FollowUpInteraction (SendMessage does this
// automatically when the outbound metadata carries an interaction token).
package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Platform is the registry name of this adapter
const Platform = "discord"

// DefaultAPIBaseURL is the Discord REST API root
const DefaultAPIBaseURL = "https://discord.com/api/v10"

const (
	SignatureHeader = "X-Signature-Ed25519"
	TimestampHeader = "X-Signature-Timestamp"
)

// Discord specific metadata keys
const (
	MetaInteractionType = "interaction_type"
	MetaCustomID        = "custom_id"
	MetaGuildID         = "guild_id"
)

func init() {
	channel.RegisterChannel(Platform, New)
}

// Verifier checks an Ed25519 signature. It is swappable so hosts without
// crypto/ed25519 (or tests) can supply their own primitive.
type Verifier func(publicKey ed25519.PublicKey, message, sig []byte) bool

// Option customizes an Adapter
type Option func(*Adapter)

// WithVerifier replaces the signature primitive. A nil verifier disables
// verification.
func WithVerifier(v Verifier) Option {
	return func(a *Adapter) { a.verify = v }
}

// WithSleep replaces the wait used before retrying a rate-limited request
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Adapter) { a.sleep = sleep }
}

// Adapter implements channel.Adapter for Discord interactions
type Adapter struct {
	token         string
	applicationID string
	publicKey     ed25519.PublicKey
	keyErr        error
	verify        Verifier
	client        *http.Client
	baseURL       string
	sleep         func(ctx context.Context, d time.Duration) error
}

var (
	_ channel.Adapter           = (*Adapter)(nil)
	_ channel.DeferredResponder = (*Adapter)(nil)
)

// New is the registry constructor
func New(cfg channel.Config) channel.Adapter {
	return NewAdapter(cfg)
}

// NewAdapter builds a Discord adapter
func NewAdapter(cfg channel.Config, opts ...Option) *Adapter {
	a := &Adapter{
		token:         cfg.Token,
		applicationID: cfg.ApplicationID,
		verify:        ed25519.Verify,
		client:        cfg.HTTPClientOrDefault(),
		baseURL:       DefaultAPIBaseURL,
		sleep:         sleepContext,
	}
	if cfg.APIBaseURL != "" {
		a.baseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	}
	if cfg.PublicKey != "" {
		key, err := hex.DecodeString(cfg.PublicKey)
		switch {
		case err != nil:
			a.keyErr = fmt.Errorf("invalid discord public key: %w", err)
		case len(key) != ed25519.PublicKeySize:
			a.keyErr = fmt.Errorf("invalid discord public key length %d", len(key))
		default:
			a.publicKey = ed25519.PublicKey(key)
		}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Platform returns "discord"
func (a *Adapter) Platform() string {
	return Platform
}

// VerifyWebhook checks the Ed25519 signature over timestamp+body. Without
// a public key or verifier every request passes; use that only in
// development.
func (a *Adapter) VerifyWebhook(r *http.Request) channel.WebhookVerification {
	if a.keyErr != nil {
		return channel.WebhookVerification{Error: a.keyErr.Error()}
	}
	if a.publicKey == nil || a.verify == nil {
		return channel.WebhookVerification{Valid: true}
	}

	sigHex := r.Header.Get(SignatureHeader)
	timestamp := r.Header.Get(TimestampHeader)
	if sigHex == "" || timestamp == "" {
		return channel.WebhookVerification{Error: "missing signature headers"}
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return channel.WebhookVerification{Error: "malformed signature"}
	}

	body, err := channel.ReadBody(r)
	if err != nil {
		return channel.WebhookVerification{Error: err.Error()}
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	if !a.verify(a.publicKey, msg, sig) {
		return channel.WebhookVerification{Error: "invalid request signature"}
	}
	return channel.WebhookVerification{Valid: true}
}

// ParseWebhook translates one interaction. PING becomes a control message
// with channel.ContentDiscordPing; interactions from bot users are
// rejected with channel.ErrBotSender.
func (a *Adapter) ParseWebhook(r *http.Request) (*channel.InboundMessage, error) {
	body, err := channel.ReadBody(r)
	if err != nil {
		return nil, err
	}

	var in discordgo.Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("failed to decode discord interaction: %w", err)
	}

	msg := &channel.InboundMessage{
		ID:        in.ID,
		Channel:   Platform,
		ChatID:    in.ChannelID,
		ChatType:  channel.ChatPrivate,
		Timestamp: interactionTime(in.ID),
		Raw:       body,
		Metadata: map[string]string{
			channel.MetaInteractionID:    in.ID,
			channel.MetaInteractionToken: in.Token,
			channel.MetaApplicationID:    in.AppID,
		},
	}

	if in.Type == discordgo.InteractionPing {
		msg.Content = channel.ContentDiscordPing
		msg.Metadata[MetaInteractionType] = "ping"
		return msg, nil
	}

	user := in.User
	if in.Member != nil && in.Member.User != nil {
		user = in.Member.User
	}
	if user == nil {
		return nil, fmt.Errorf("interaction %s has no user: %w", in.ID, channel.ErrNoMessage)
	}
	if user.Bot {
		return nil, fmt.Errorf("interaction %s from %s: %w", in.ID, user.ID, channel.ErrBotSender)
	}

	msg.SenderID = user.ID
	msg.SenderName = user.Username
	msg.SenderUsername = user.Username
	if in.GuildID != "" {
		msg.ChatType = channel.ChatGroup
		msg.Metadata[MetaGuildID] = in.GuildID
	}

	switch in.Type {
	case discordgo.InteractionApplicationCommand:
		data := in.ApplicationCommandData()
		msg.Metadata[MetaInteractionType] = "command"
		msg.Metadata[channel.MetaCommand] = data.Name
		msg.Content = strings.Join(optionValues(data.Options), " ")
		if msg.Content == "" {
			msg.Content = "/" + data.Name
		}
	case discordgo.InteractionMessageComponent:
		data := in.MessageComponentData()
		msg.Metadata[MetaInteractionType] = "component"
		msg.Metadata[MetaCustomID] = data.CustomID
		msg.Content = data.CustomID
		if len(data.Values) > 0 {
			msg.Content = strings.Join(data.Values, " ")
		}
		if in.Message != nil {
			msg.ReplyTo = in.Message.ID
		}
	case discordgo.InteractionApplicationCommandAutocomplete:
		data := in.ApplicationCommandData()
		msg.Metadata[MetaInteractionType] = "autocomplete"
		msg.Metadata[channel.MetaCommand] = data.Name
		msg.Metadata[channel.MetaAckOnly] = "true"
		msg.Content = focusedValue(data.Options)
		if msg.Content == "" {
			msg.Content = "/" + data.Name
		}
	default:
		return nil, fmt.Errorf("unsupported interaction type %d: %w", in.Type, channel.ErrNoMessage)
	}

	logger.WithFields(logrus.Fields{
		"platform":   Platform,
		"type":       msg.Metadata[MetaInteractionType],
		"channel_id": msg.ChatID,
		"user_id":    msg.SenderID,
	}).Debug("received-discord-interaction-parsed")

	return msg, nil
}

// optionValues flattens option values in order, descending into
// sub-commands and groups
func optionValues(opts []*discordgo.ApplicationCommandInteractionDataOption) []string {
	var values []string
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if len(opt.Options) > 0 {
			values = append(values, optionValues(opt.Options)...)
			continue
		}
		if opt.Value != nil {
			values = append(values, fmt.Sprint(opt.Value))
		}
	}
	return values
}

func focusedValue(opts []*discordgo.ApplicationCommandInteractionDataOption) string {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if opt.Focused && opt.Value != nil {
			return fmt.Sprint(opt.Value)
		}
		if v := focusedValue(opt.Options); v != "" {
			return v
		}
	}
	return ""
}

func interactionTime(id string) time.Time {
	if ts, err := discordgo.SnowflakeTimestamp(id); err == nil {
		return ts
	}
	return time.Now()
}

// DeferredAck returns the synchronous webhook response: PONG for pings,
// empty choices for autocomplete and a deferred channel message for
// everything else.
func (a *Adapter) DeferredAck(msg *channel.InboundMessage) (any, bool) {
	if msg == nil {
		return nil, false
	}
	if msg.Content == channel.ContentDiscordPing {
		return discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}, true
	}
	if msg.Meta(MetaInteractionType) == "autocomplete" {
		return discordgo.InteractionResponse{
			Type: discordgo.InteractionApplicationCommandAutocompleteResult,
			Data: &discordgo.InteractionResponseData{Choices: []*discordgo.ApplicationCommandOptionChoice{}},
		}, true
	}
	if msg.Meta(channel.MetaInteractionToken) == "" {
		return nil, false
	}
	return discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}, true
}

// RespondToInteraction answers an interaction directly. It must complete
// within three seconds of receipt; content beyond the first chunk is sent
// as follow-ups.
func (a *Adapter) RespondToInteraction(ctx context.Context, interactionID, token, content string) channel.SendResult {
	chunks := channel.SplitMessage(content, constants.MaxDiscordMessageLength)

	resp := discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: chunks[0]},
	}
	url := fmt.Sprintf("%s/interactions/%s/%s/callback", a.baseURL, interactionID, token)
	if _, err := a.do(ctx, http.MethodPost, url, resp, false); err != nil {
		return channel.Failed("failed to respond to discord interaction", err)
	}

	if len(chunks) > 1 {
		if res := a.followUpChunks(ctx, a.applicationID, token, chunks[1:]); !res.Success {
			return res
		}
	}
	return channel.SendResult{Success: true, MessageID: interactionID}
}

// FollowUpInteraction posts to the interaction webhook. Usable for 15
// minutes after the interaction, long after the initial response window.
func (a *Adapter) FollowUpInteraction(ctx context.Context, token, content string) channel.SendResult {
	return a.followUpChunks(ctx, a.applicationID, token,
		channel.SplitMessage(content, constants.MaxDiscordMessageLength))
}

func (a *Adapter) followUpChunks(ctx context.Context, appID, token string, chunks []string) channel.SendResult {
	if appID == "" {
		return channel.Failed("discord application ID not configured", nil)
	}

	var firstID string
	for _, chunk := range chunks {
		if chunk == "" {
			continue
		}
		url := fmt.Sprintf("%s/webhooks/%s/%s", a.baseURL, appID, token)
		body, err := a.do(ctx, http.MethodPost, url, discordgo.WebhookParams{Content: chunk}, false)
		if err != nil {
			return channel.Failed("failed to send discord follow-up", err)
		}
		if firstID == "" {
			firstID = messageID(body)
		}
	}
	return channel.SendResult{Success: true, MessageID: firstID}
}

// SendMessage posts content to a channel. When the metadata carries an
// interaction token the content is delivered as an interaction follow-up
// instead.
func (a *Adapter) SendMessage(ctx context.Context, msg channel.OutboundMessage) channel.SendResult {
	// escaping only grows the text, so format before splitting to stay under the limit
	chunks := channel.SplitMessage(a.FormatContent(msg.Content, msg.ParseMode), constants.MaxDiscordMessageLength)

	if token := msg.Metadata[channel.MetaInteractionToken]; token != "" {
		appID := msg.Metadata[channel.MetaApplicationID]
		if appID == "" {
			appID = a.applicationID
		}
		res := a.followUpChunks(ctx, appID, token, chunks)
		a.logSend(msg.ChatID, len(chunks), res)
		return res
	}

	if a.token == "" {
		return channel.Failed("discord bot token not configured", nil)
	}
	if msg.ChatID == "" {
		return channel.Failed("channel ID is required for Discord", nil)
	}

	var firstID string
	for i, chunk := range chunks {
		if chunk == "" {
			continue
		}
		payload := discordgo.MessageSend{Content: chunk}
		if i == 0 && msg.ReplyTo != "" {
			payload.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
		}
		url := fmt.Sprintf("%s/channels/%s/messages", a.baseURL, msg.ChatID)
		body, err := a.do(ctx, http.MethodPost, url, payload, true)
		if err != nil {
			res := channel.Failed(fmt.Sprintf("failed to send message to channel %s", msg.ChatID), err)
			a.logSend(msg.ChatID, len(chunks), res)
			return res
		}
		if firstID == "" {
			firstID = messageID(body)
		}
	}

	res := channel.SendResult{Success: true, MessageID: firstID}
	a.logSend(msg.ChatID, len(chunks), res)
	return res
}

func (a *Adapter) logSend(chatID string, chunks int, res channel.SendResult) {
	if !res.Success {
		logger.WithFields(logrus.Fields{
			"channel_id": chatID,
			"error":      res.Error,
		}).Error("failed-to-send-message-to-discord")
		return
	}
	logger.WithFields(logrus.Fields{
		"channel_id": chatID,
		"chunks":     chunks,
	}).Info("message-sent-to-discord")
}

func messageID(body []byte) string {
	var m discordgo.Message
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	return m.ID
}

var markdownEscaper = strings.NewReplacer(
	`*`, `\*`,
	`_`, `\_`,
	`~`, `\~`,
	"`", "\\`",
	`|`, `\|`,
	`>`, `\>`,
)

// FormatContent passes markdown through (Discord renders it natively) and
// escapes markdown control characters in plain mode
func (a *Adapter) FormatContent(content string, mode channel.ParseMode) string {
	if mode == channel.ParsePlain {
		return markdownEscaper.Replace(content)
	}
	return content
}

// HealthCheck fetches the bot user
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.token == "" {
		return fmt.Errorf("discord bot token not configured")
	}
	body, err := a.do(ctx, http.MethodGet, a.baseURL+"/users/@me", nil, true)
	if err != nil {
		return fmt.Errorf("discord health check failed: %w", err)
	}
	var me discordgo.User
	if err := json.Unmarshal(body, &me); err != nil {
		return fmt.Errorf("failed to decode discord user: %w", err)
	}
	logger.WithField("bot_username", me.Username).Debug("discord-health-check-ok")
	return nil
}
