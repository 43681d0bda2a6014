// Package dingtalk adapts DingTalk outgoing-robot HTTP callbacks to the
// channel layer. Replies go to the per-conversation session webhook carried
// by each callback.
package dingtalk

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/sirupsen/logrus"
)

// Platform is the registry name of this adapter
const Platform = "dingtalk"

const (
	conversationPrivate = "1"
	conversationGroup   = "2"
)

func init() {
	channel.RegisterChannel(Platform, New)
}

// replier is the part of chatbot.ChatbotReplier used for sending
type replier interface {
	SimpleReplyText(ctx context.Context, sessionWebhook string, content []byte) error
	SimpleReplyMarkdown(ctx context.Context, sessionWebhook string, title, content []byte) error
}

// Adapter implements channel.Adapter for DingTalk
type Adapter struct {
	channel.Base
	appKey    string
	appSecret string
	replier   replier
	now       func() time.Time
}

var _ channel.Adapter = (*Adapter)(nil)

// New is the registry constructor
func New(cfg channel.Config) channel.Adapter {
	return NewAdapter(cfg)
}

// NewAdapter builds a DingTalk adapter. AppSecret signs callbacks; AppID
// (the app key) is only needed for Stream mode.
func NewAdapter(cfg channel.Config) *Adapter {
	return &Adapter{
		appKey:    cfg.AppID,
		appSecret: cfg.AppSecret,
		replier:   chatbot.NewChatbotReplier(),
		now:       time.Now,
	}
}

// Platform returns "dingtalk"
func (a *Adapter) Platform() string {
	return Platform
}

// VerifyWebhook checks the timestamp/sign headers. The timestamp must be
// within an hour of now.
func (a *Adapter) VerifyWebhook(r *http.Request) channel.WebhookVerification {
	if a.appSecret == "" {
		return channel.WebhookVerification{Valid: true}
	}

	timestamp := r.Header.Get("timestamp")
	sign := r.Header.Get("sign")
	if timestamp == "" || sign == "" {
		return channel.WebhookVerification{Error: "missing timestamp or sign header"}
	}

	ms, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return channel.WebhookVerification{Error: "malformed timestamp"}
	}
	age := a.now().Sub(time.UnixMilli(ms))
	if age < 0 {
		age = -age
	}
	if age > constants.DingTalkSignatureWindow {
		return channel.WebhookVerification{Error: "timestamp outside signature window"}
	}

	if !hmac.Equal([]byte(sign), []byte(Sign(timestamp, a.appSecret))) {
		return channel.WebhookVerification{Error: "invalid sign"}
	}
	return channel.WebhookVerification{Valid: true}
}

// Sign computes base64(HMAC-SHA256(secret, timestamp + "\n" + secret))
func Sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseWebhook translates a robot callback
func (a *Adapter) ParseWebhook(r *http.Request) (*channel.InboundMessage, error) {
	body, err := channel.ReadBody(r)
	if err != nil {
		return nil, err
	}

	var data chatbot.BotCallbackDataModel
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode dingtalk callback: %w", err)
	}
	msg, err := translateCallback(&data)
	if err != nil {
		return nil, err
	}
	msg.Raw = body

	logger.WithFields(logrus.Fields{
		"platform":          Platform,
		"conversation_id":   data.ConversationId,
		"conversation_type": data.ConversationType,
		"msg_id":            data.MsgId,
		"msg_type":          data.Msgtype,
		"content_len":       len(msg.Content),
	}).Debug("received-dingtalk-message-parsed")

	return msg, nil
}

// translateCallback maps a robot callback to a message. Shared by HTTP
// callbacks and Stream mode.
func translateCallback(data *chatbot.BotCallbackDataModel) (*channel.InboundMessage, error) {
	if data.ConversationId == "" {
		return nil, fmt.Errorf("dingtalk callback without conversation: %w", channel.ErrNoMessage)
	}

	senderID := data.SenderStaffId
	if senderID == "" {
		senderID = data.SenderId
	}
	if senderID == "" {
		return nil, fmt.Errorf("dingtalk callback without sender: %w", channel.ErrNoMessage)
	}

	content := strings.TrimSpace(data.Text.Content)
	if data.Msgtype != "" && data.Msgtype != "text" {
		content = "[" + data.Msgtype + "]"
	}
	if content == "" {
		return nil, fmt.Errorf("dingtalk %s message has no content: %w", data.Msgtype, channel.ErrNoMessage)
	}

	chatType := channel.ChatGroup
	if data.ConversationType == conversationPrivate {
		chatType = channel.ChatPrivate
	}

	ts := time.Now()
	if data.CreateAt > 0 {
		ts = time.UnixMilli(data.CreateAt)
	}

	return &channel.InboundMessage{
		ID:         data.MsgId,
		Channel:    Platform,
		SenderID:   senderID,
		SenderName: data.SenderNick,
		ChatID:     data.ConversationId,
		ChatType:   chatType,
		Content:    content,
		Timestamp:  ts,
		Metadata: map[string]string{
			channel.MetaSessionWebhook: data.SessionWebhook,
			"conversation_type":        data.ConversationType,
			"conversation_title":       data.ConversationTitle,
		},
	}, nil
}

// SendMessage replies through the session webhook in
// msg.Metadata[channel.MetaSessionWebhook]
func (a *Adapter) SendMessage(ctx context.Context, msg channel.OutboundMessage) channel.SendResult {
	webhook := msg.Metadata[channel.MetaSessionWebhook]
	if webhook == "" {
		return channel.Failed("dingtalk session webhook is required", nil)
	}

	for i, chunk := range channel.SplitMessage(msg.Content, constants.MaxDingTalkMessageLength) {
		if chunk == "" {
			continue
		}
		var err error
		if msg.ParseMode == channel.ParsePlain {
			err = a.replier.SimpleReplyText(ctx, webhook, []byte(chunk))
		} else {
			err = a.replier.SimpleReplyMarkdown(ctx, webhook, []byte(title(chunk)), []byte(a.FormatContent(chunk, msg.ParseMode)))
		}
		if err != nil {
			logger.WithFields(logrus.Fields{
				"conversation_id": msg.ChatID,
				"chunk":           i,
				"error":           err,
			}).Error("failed-to-send-message-to-dingtalk")
			return channel.Failed("failed to reply to dingtalk", err)
		}
	}

	logger.WithField("conversation_id", msg.ChatID).Info("message-sent-to-dingtalk")
	return channel.SendResult{Success: true}
}

// title is the notification preview, taken from the first line
func title(content string) string {
	line := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	line = strings.TrimLeft(line, "# ")
	if r := []rune(line); len(r) > 20 {
		line = string(r[:20])
	}
	if line == "" {
		return "reply"
	}
	return line
}

// FormatContent passes content through; DingTalk renders markdown itself
func (a *Adapter) FormatContent(content string, mode channel.ParseMode) string {
	return content
}
