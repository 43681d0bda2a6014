// Package feishu adapts Feishu (and its international edition Lark) event
// subscriptions to the channel layer. Replies are always sent as
// interactive cards.
package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/pkg/constants"
	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/sirupsen/logrus"
)

// Platform is the registry name of this adapter
const Platform = "feishu"

// DomainLark selects open.larksuite.com instead of open.feishu.cn
const DomainLark = "lark"

// MetaMessageType holds the raw Feishu message type
const MetaMessageType = "message_type"

func init() {
	channel.RegisterChannel(Platform, New)
}

// Adapter implements channel.Adapter for Feishu/Lark
type Adapter struct {
	appID             string
	appSecret         string
	encryptKey        string
	verificationToken string
	client            *lark.Client
	tokens            *tokenCache
	names             *nameCache
}

var _ channel.Adapter = (*Adapter)(nil)

// New is the registry constructor
func New(cfg channel.Config) channel.Adapter {
	return NewAdapter(cfg)
}

// NewAdapter builds a Feishu adapter. cfg.Domain "lark" targets Lark;
// cfg.APIBaseURL overrides both.
func NewAdapter(cfg channel.Config) *Adapter {
	base := lark.FeishuBaseUrl
	if strings.EqualFold(cfg.Domain, DomainLark) {
		base = lark.LarkBaseUrl
	}
	if cfg.APIBaseURL != "" {
		base = strings.TrimRight(cfg.APIBaseURL, "/")
	}

	httpClient := cfg.HTTPClientOrDefault()
	a := &Adapter{
		appID:             cfg.AppID,
		appSecret:         cfg.AppSecret,
		encryptKey:        cfg.EncryptKey,
		verificationToken: cfg.VerificationToken,
		// tokens are cached by tokenCache, not by the SDK
		client: lark.NewClient(cfg.AppID, cfg.AppSecret,
			lark.WithOpenBaseUrl(base),
			lark.WithEnableTokenCache(false),
			lark.WithHttpClient(httpClient),
			lark.WithLogLevel(larkcore.LogLevelError),
		),
		names: newNameCache(),
	}
	a.tokens = &tokenCache{now: time.Now, fetch: a.fetchTenantToken}
	return a
}

// Platform returns "feishu"
func (a *Adapter) Platform() string {
	return Platform
}

// VerifyWebhook answers the url_verification handshake before any other
// check, then validates the request signature (when an encrypt key is set)
// and the verification token (when configured).
func (a *Adapter) VerifyWebhook(r *http.Request) channel.WebhookVerification {
	body, err := channel.ReadBody(r)
	if err != nil {
		return channel.WebhookVerification{Error: err.Error()}
	}

	env, _, err := decodeEnvelope(body, a.encryptKey)
	if err != nil {
		return channel.WebhookVerification{Error: err.Error()}
	}
	if env.isChallenge() {
		return channel.WebhookVerification{Valid: true, Challenge: env.Challenge}
	}

	if a.encryptKey != "" {
		sig := r.Header.Get(HeaderSignature)
		if sig == "" {
			return channel.WebhookVerification{Error: "missing request signature"}
		}
		want := signature(r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderNonce), a.encryptKey, body)
		if !equalString(sig, want) {
			return channel.WebhookVerification{Error: "invalid request signature"}
		}
	}

	if a.verificationToken != "" && !equalString(env.token(), a.verificationToken) {
		return channel.WebhookVerification{Error: "invalid verification token"}
	}
	return channel.WebhookVerification{Valid: true}
}

// ParseWebhook translates an im.message.receive_v1 event. The handshake
// becomes a control message carrying the challenge; other events wrap
// channel.ErrNoMessage.
func (a *Adapter) ParseWebhook(r *http.Request) (*channel.InboundMessage, error) {
	body, err := channel.ReadBody(r)
	if err != nil {
		return nil, err
	}
	env, plain, err := decodeEnvelope(body, a.encryptKey)
	if err != nil {
		return nil, err
	}

	if env.isChallenge() {
		return &channel.InboundMessage{
			Channel:   Platform,
			Content:   channel.ContentURLVerification,
			Metadata:  map[string]string{channel.MetaChallenge: env.Challenge},
			Timestamp: time.Now(),
			Raw:       plain,
		}, nil
	}

	if et := env.eventType(); et != eventTypeMessageReceive {
		return nil, fmt.Errorf("feishu event %q: %w", et, channel.ErrNoMessage)
	}

	var event larkim.P2MessageReceiveV1
	if err := json.Unmarshal(plain, &event); err != nil {
		return nil, fmt.Errorf("failed to decode feishu message event: %w", err)
	}
	if event.Event == nil || event.Event.Message == nil {
		return nil, fmt.Errorf("feishu event without message: %w", channel.ErrNoMessage)
	}

	ev := event.Event
	m := ev.Message
	if ev.Sender == nil || ev.Sender.SenderId == nil {
		return nil, fmt.Errorf("feishu message without sender: %w", channel.ErrNoMessage)
	}
	if str(ev.Sender.SenderType) == "app" {
		return nil, fmt.Errorf("feishu message from app: %w", channel.ErrBotSender)
	}

	senderID := str(ev.Sender.SenderId.OpenId)
	if senderID == "" {
		senderID = str(ev.Sender.SenderId.UserId)
	}

	msgType := str(m.MessageType)
	content := messageText(msgType, str(m.Content), m.Mentions)
	if content == "" {
		return nil, fmt.Errorf("feishu %s message has no content: %w", msgType, channel.ErrNoMessage)
	}

	msg := &channel.InboundMessage{
		ID:         str(m.MessageId),
		Channel:    Platform,
		SenderID:   senderID,
		SenderName: senderID,
		ChatType:   channel.ChatGroup,
		ChatID:     str(m.ChatId),
		Content:    content,
		ReplyTo:    str(m.ParentId),
		Timestamp:  millis(str(m.CreateTime)),
		Raw:        plain,
		Metadata: map[string]string{
			MetaMessageType: msgType,
			"chat_id":       str(m.ChatId),
		},
	}
	if openID := str(ev.Sender.SenderId.OpenId); openID != "" {
		msg.SenderName = a.senderName(r.Context(), openID)
	}
	// one-to-one chats are addressed by the sender's open id
	if str(m.ChatType) == "p2p" {
		msg.ChatType = channel.ChatPrivate
		msg.ChatID = senderID
	}
	if env.Header != nil && env.Header.TenantKey != "" {
		msg.Metadata[channel.MetaTenantKey] = env.Header.TenantKey
	}

	logger.WithFields(logrus.Fields{
		"platform":     Platform,
		"chat_id":      msg.ChatID,
		"chat_type":    msg.ChatType,
		"message_id":   msg.ID,
		"message_type": msgType,
		"content_len":  len(msg.Content),
	}).Debug("received-feishu-message-event-parsed")

	return msg, nil
}

// messageText extracts readable text from the JSON content of a message
func messageText(msgType, content string, mentions []*larkim.MentionEvent) string {
	switch msgType {
	case "text":
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(content), &body); err != nil {
			return ""
		}
		text := body.Text
		for _, mention := range mentions {
			if mention != nil && mention.Key != nil {
				text = strings.ReplaceAll(text, *mention.Key, "")
			}
		}
		return strings.TrimSpace(text)
	case "post":
		return extractPostText(content)
	case "media":
		return "[video]"
	case "":
		return ""
	default:
		return "[" + msgType + "]"
	}
}

// SendMessage renders content as interactive cards, one per chunk. With
// ReplyTo set the first card is sent through the reply API.
func (a *Adapter) SendMessage(ctx context.Context, msg channel.OutboundMessage) channel.SendResult {
	if msg.ChatID == "" && msg.ReplyTo == "" {
		return channel.Failed("chat ID is required for Feishu", nil)
	}

	token, err := a.tokens.get(ctx)
	if err != nil {
		return channel.Failed("failed to get feishu tenant access token", err)
	}

	var firstID string
	for i, chunk := range channel.SplitMessage(msg.Content, constants.MaxFeishuCardLength) {
		if chunk == "" {
			continue
		}
		cardJSON := a.FormatContent(chunk, msg.ParseMode)

		var id string
		if msg.ReplyTo != "" && (i == 0 || msg.ChatID == "") {
			id, err = a.reply(ctx, token, msg.ReplyTo, cardJSON)
		} else {
			id, err = a.create(ctx, token, msg.ChatID, cardJSON)
		}
		if err != nil {
			logger.WithFields(logrus.Fields{
				"chat_id": msg.ChatID,
				"chunk":   i,
				"error":   err,
			}).Error("failed-to-send-message-to-feishu")
			return channel.Failed(fmt.Sprintf("failed to send card to chat %s", msg.ChatID), err)
		}
		if firstID == "" {
			firstID = id
		}
	}

	logger.WithField("chat_id", msg.ChatID).Info("message-sent-to-feishu")
	return channel.SendResult{Success: true, MessageID: firstID}
}

func (a *Adapter) create(ctx context.Context, token, chatID, cardJSON string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType(chatID)).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeInteractive).
			Content(cardJSON).
			Build()).
		Build()

	resp, err := a.client.Im.Message.Create(ctx, req, larkcore.WithTenantAccessToken(token))
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return "", nil
	}
	return str(resp.Data.MessageId), nil
}

func (a *Adapter) reply(ctx context.Context, token, messageID, cardJSON string) (string, error) {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeInteractive).
			Content(cardJSON).
			Build()).
		Build()

	resp, err := a.client.Im.Message.Reply(ctx, req, larkcore.WithTenantAccessToken(token))
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil {
		return "", nil
	}
	return str(resp.Data.MessageId), nil
}

// receiveIDType infers the id namespace from its prefix
func receiveIDType(id string) string {
	switch {
	case strings.HasPrefix(id, "ou_"):
		return larkim.ReceiveIdTypeOpenId
	case strings.HasPrefix(id, "on_"):
		return larkim.ReceiveIdTypeUnionId
	default:
		return larkim.ReceiveIdTypeChatId
	}
}

// FormatContent returns the interactive card JSON for content
func (a *Adapter) FormatContent(content string, mode channel.ParseMode) string {
	if mode == channel.ParsePlain {
		return plainCard(content).JSON()
	}
	return buildCard(content).JSON()
}

// HealthCheck obtains a tenant access token
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.tokens.get(ctx); err != nil {
		return fmt.Errorf("feishu health check failed: %w", err)
	}
	return nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func millis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
