package channel

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	Base
	cfg Config
}

func (s *stubAdapter) Platform() string { return "stub" }

func (s *stubAdapter) VerifyWebhook(r *http.Request) WebhookVerification {
	return WebhookVerification{Valid: true}
}

func (s *stubAdapter) ParseWebhook(r *http.Request) (*InboundMessage, error) {
	return nil, ErrNoMessage
}

func (s *stubAdapter) SendMessage(ctx context.Context, msg OutboundMessage) SendResult {
	return SendResult{Success: true}
}

func (s *stubAdapter) FormatContent(content string, mode ParseMode) string {
	return content
}

func TestGetChannelAdapter_Unregistered_ReturnsNil(t *testing.T) {
	adapter := GetChannelAdapter("unregistered-platform", Config{Token: "x"})
	assert.Nil(t, adapter)
}

func TestRegisterChannel_ThenLookup(t *testing.T) {
	RegisterChannel("x", func(cfg Config) Adapter { return &stubAdapter{cfg: cfg} })
	t.Cleanup(func() { RemoveChannel("x") })

	assert.Contains(t, GetRegisteredPlatforms(), "x")

	adapter := GetChannelAdapter("x", Config{Token: "secret"})
	require.NotNil(t, adapter)
	assert.Equal(t, "secret", adapter.(*stubAdapter).cfg.Token)
	assert.NoError(t, adapter.HealthCheck(context.Background()))
}

func TestRegisterChannel_Replaces(t *testing.T) {
	RegisterChannel("replace-me", func(cfg Config) Adapter { return &stubAdapter{cfg: Config{Token: "first"}} })
	RegisterChannel("replace-me", func(cfg Config) Adapter { return &stubAdapter{cfg: Config{Token: "second"}} })
	t.Cleanup(func() { RemoveChannel("replace-me") })

	adapter := GetChannelAdapter("replace-me", Config{})
	require.NotNil(t, adapter)
	assert.Equal(t, "second", adapter.(*stubAdapter).cfg.Token)
}

func TestRegisterChannel_IgnoresInvalid(t *testing.T) {
	RegisterChannel("", func(cfg Config) Adapter { return &stubAdapter{} })
	RegisterChannel("nil-ctor", nil)

	assert.NotContains(t, GetRegisteredPlatforms(), "")
	assert.NotContains(t, GetRegisteredPlatforms(), "nil-ctor")
}

func TestRemoveChannel(t *testing.T) {
	RegisterChannel("temp", func(cfg Config) Adapter { return &stubAdapter{} })
	RemoveChannel("temp")

	assert.NotContains(t, GetRegisteredPlatforms(), "temp")
	assert.Nil(t, GetChannelAdapter("temp", Config{}))
}

func TestGetRegisteredPlatforms_Sorted(t *testing.T) {
	RegisterChannel("zz-last", func(cfg Config) Adapter { return &stubAdapter{} })
	RegisterChannel("aa-first", func(cfg Config) Adapter { return &stubAdapter{} })
	t.Cleanup(func() {
		RemoveChannel("zz-last")
		RemoveChannel("aa-first")
	})

	names := GetRegisteredPlatforms()
	assert.IsIncreasing(t, names)
}

func TestReadBody_CanBeReadTwice(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/webhook/x", bytes.NewBufferString(`{"a":1}`))

	first, err := ReadBody(req)
	require.NoError(t, err)
	second, err := ReadBody(req)
	require.NoError(t, err)
	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, first, rest)
}

func TestInboundMessage_IsControl(t *testing.T) {
	assert.True(t, (&InboundMessage{Content: ContentDiscordPing}).IsControl())
	assert.True(t, (&InboundMessage{Content: ContentURLVerification}).IsControl())
	assert.False(t, (&InboundMessage{Content: "hello"}).IsControl())
}

func TestFailed(t *testing.T) {
	res := Failed("send failed", io.EOF)
	assert.False(t, res.Success)
	assert.Equal(t, "send failed: EOF", res.Error)
	assert.Equal(t, "boom", Failed("boom", nil).Error)
}
