package constants

import "time"

// Message length limits for different platforms, counted in characters
const (
	// MaxDiscordMessageLength is Discord's message character limit
	MaxDiscordMessageLength = 2000
	// MaxTelegramMessageLength is the chunk size used for Telegram. The API limit is 4096,
	// the difference leaves room for HTML tags added after splitting.
	MaxTelegramMessageLength = 4000
	// MaxFeishuCardLength is the chunk size used for one Feishu interactive card
	MaxFeishuCardLength = 8000
	// MaxDingTalkMessageLength is DingTalk's message character limit
	MaxDingTalkMessageLength = 20000
)

// Timeouts and delays
const (
	// DefaultHTTPTimeout is the timeout for outbound platform API requests
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultProcessTimeout bounds pipeline + delivery for one inbound message
	DefaultProcessTimeout = 2 * time.Minute
	// DefaultShutdownTimeout is how long the webhook server waits for in-flight requests
	DefaultShutdownTimeout = 5 * time.Second
	// FeishuTokenRefreshMargin is subtracted from the tenant token TTL
	FeishuTokenRefreshMargin = 5 * time.Minute
	// DingTalkSignatureWindow is the accepted clock skew for DingTalk callback signatures
	DingTalkSignatureWindow = time.Hour
	// TelegramPollTimeout is the getUpdates long-poll wait; must stay below DefaultHTTPTimeout
	TelegramPollTimeout = 10 * time.Second
	// ListenerRetryDelay is the pause after a failed poll or dropped stream connection
	ListenerRetryDelay = 3 * time.Second
)

// Request limits
const (
	// MaxWebhookBodySize caps how much of a webhook body is buffered
	MaxWebhookBodySize = 1 << 20
	// MessageChannelBufferSize is the buffer size for the inbound message channel
	MessageChannelBufferSize = 100
	// MaxSpecialCommandInputLength rejects oversized command candidates early
	MaxSpecialCommandInputLength = 10000
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to show a prefix and suffix
	MinSecretLengthForMasking = 8
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
)
