// Package channel provides the platform-neutral adapter layer between
// messaging platforms and the chat pipeline.
//
// Each platform (Telegram, Discord, Feishu/Lark, DingTalk) lives in its own
// sub-package and implements Adapter. Adapters translate one webhook request
// into one InboundMessage and render an OutboundMessage in the platform's
// rich-text dialect.
//
// # Registration
//
// Adapter packages register a constructor from init():
//
//	func init() {
//		channel.RegisterChannel("telegram", New)
//	}
//
// Callers import the packages they want (or internal/channel/all) and build
// adapters generically:
//
//	adapter := channel.GetChannelAdapter("telegram", cfg)
//	if adapter == nil {
//		// platform not compiled in
//	}
//
// # Webhook bodies
//
// VerifyWebhook and ParseWebhook both need the full request body. Use
// ReadBody, which buffers the body and puts a fresh reader back on the
// request so the next step can read it again.
package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/keepmind9/chatbridge/pkg/constants"
)

// Adapter is implemented by every messaging platform
type Adapter interface {
	// Platform returns the registry name, e.g. "telegram"
	Platform() string

	// VerifyWebhook authenticates the request without consuming its body
	VerifyWebhook(r *http.Request) WebhookVerification

	// ParseWebhook translates the request into exactly one message. Errors
	// wrap ErrNoMessage when the payload is not something to answer.
	ParseWebhook(r *http.Request) (*InboundMessage, error)

	// SendMessage delivers a message, splitting it to the platform limit
	SendMessage(ctx context.Context, msg OutboundMessage) SendResult

	// FormatContent renders markdown-ish source in the platform dialect
	FormatContent(content string, mode ParseMode) string

	// HealthCheck validates credentials against the platform
	HealthCheck(ctx context.Context) error
}

// FileURLResolver turns an opaque platform file reference into a download URL
type FileURLResolver interface {
	GetFileURL(ctx context.Context, fileRef string) (string, error)
}

// MediaDownloader fetches attachment bytes
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, media MediaAttachment) ([]byte, error)
}

// TypingIndicator shows a "typing" status in a chat
type TypingIndicator interface {
	SendTypingIndicator(ctx context.Context, chatID string) error
}

// CallbackAcknowledger stops the client-side spinner of a pressed button
type CallbackAcknowledger interface {
	AcknowledgeCallback(ctx context.Context, msg *InboundMessage) error
}

// WebhookRegistrar points the platform at this service's webhook URL
type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, url string) error
}

// Listener receives messages over a long-lived connection (long polling,
// stream sockets) instead of webhooks. Listen blocks until ctx is done.
type Listener interface {
	Listen(ctx context.Context, handler func(*InboundMessage)) error
}

// DeferredResponder is implemented by platforms whose webhook must be
// answered with a specific body before the reply is ready. The returned
// value is written as the JSON response of the webhook request.
type DeferredResponder interface {
	DeferredAck(msg *InboundMessage) (body any, ok bool)
}

// Base supplies default behavior for optional parts of Adapter
type Base struct{}

// HealthCheck reports healthy. Platform adapters override it.
func (Base) HealthCheck(ctx context.Context) error {
	return nil
}

// ReadBody returns the request body and replaces it with a re-readable copy
func ReadBody(r *http.Request) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, constants.MaxWebhookBodySize))
	r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return data, nil
}

// HTTPClientOrDefault returns the configured client or a default with a timeout
func (c Config) HTTPClientOrDefault() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: constants.DefaultHTTPTimeout}
}
