package channel

import (
	"encoding/json"
	"net/http"
	"time"
)

// ChatType is the unified kind of conversation a message belongs to
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// ParseMode tells FormatContent how the source text should be rendered
type ParseMode string

const (
	ParseMarkdown ParseMode = "markdown"
	ParseHTML     ParseMode = "html"
	ParsePlain    ParseMode = "plain"
)

// MediaType classifies an attachment
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
	MediaSticker  MediaType = "sticker"
)

// Sentinel contents for protocol control frames. The engine answers these
// itself and never forwards them to the pipeline.
const (
	ContentDiscordPing     = "__discord_ping__"
	ContentURLVerification = "__url_verification__"
)

// Metadata keys shared between adapters and the engine
const (
	MetaCommand          = "command"
	MetaInteractionID    = "interaction_id"
	MetaInteractionToken = "interaction_token"
	MetaApplicationID    = "application_id"
	MetaCallbackQueryID  = "callback_query_id"
	MetaChallenge        = "challenge"
	MetaSessionWebhook   = "session_webhook"
	MetaTenantKey        = "tenant_key"
	// MetaAckOnly marks messages fully answered by the webhook response
	MetaAckOnly          = "ack_only"
)

// MediaAttachment describes a file attached to a message. For Telegram URL
// holds a file_id that must be resolved with GetFileURL before download.
type MediaAttachment struct {
	Type     MediaType `json:"type"`
	URL      string    `json:"url"`
	Filename string    `json:"filename,omitempty"`
	MimeType string    `json:"mime_type,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Caption  string    `json:"caption,omitempty"`
}

// InboundMessage is a message or interaction received from any platform
type InboundMessage struct {
	ID             string            `json:"id,omitempty"`
	Channel        string            `json:"channel"`
	SenderID       string            `json:"sender_id"`
	SenderName     string            `json:"sender_name"`
	SenderUsername string            `json:"sender_username,omitempty"`
	ChatID         string            `json:"chat_id"`
	ChatType       ChatType          `json:"chat_type"`
	Content        string            `json:"content"`
	Media          []MediaAttachment `json:"media,omitempty"`
	ReplyTo        string            `json:"reply_to,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Raw            json.RawMessage   `json:"raw,omitempty"`
}

// IsControl reports whether the message is a protocol handshake rather than chat
func (m *InboundMessage) IsControl() bool {
	return m.Content == ContentDiscordPing || m.Content == ContentURLVerification
}

// Meta returns a metadata value or "" when absent
func (m *InboundMessage) Meta(key string) string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// OutboundMessage is what calling code wants delivered to a platform.
// Content length is unbounded; adapters split it to their own limit.
type OutboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Media     []MediaAttachment `json:"media,omitempty"`
	ParseMode ParseMode         `json:"parse_mode,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// WebhookVerification is the outcome of authenticating a webhook request.
// Challenge, when set, must be echoed back verbatim in the HTTP response.
type WebhookVerification struct {
	Valid     bool   `json:"valid"`
	Error     string `json:"error,omitempty"`
	Challenge string `json:"challenge,omitempty"`
}

// SendResult reports an outbound delivery. Failures are values, not errors.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed builds an unsuccessful SendResult
func Failed(msg string, err error) SendResult {
	if err == nil {
		return SendResult{Error: msg}
	}
	return SendResult{Error: msg + ": " + err.Error()}
}

// Config carries per-platform credentials. It is owned by the caller and
// injected at construction; adapters never persist it.
type Config struct {
	// Telegram bot token, Discord bot token
	Token string
	// Telegram webhook secret (X-Telegram-Bot-Api-Secret-Token)
	SecretToken string

	// Discord application id and hex-encoded Ed25519 public key
	ApplicationID string
	PublicKey     string

	// Feishu/Lark and DingTalk app credentials
	AppID             string
	AppSecret         string
	EncryptKey        string
	VerificationToken string
	// Domain selects feishu (default) or lark
	Domain string

	// APIBaseURL overrides the platform API endpoint
	APIBaseURL string
	// HTTPClient overrides the client used for outbound calls
	HTTPClient *http.Client
}
