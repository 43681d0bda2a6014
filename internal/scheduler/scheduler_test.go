package scheduler

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAdapter struct {
	channel.Base
	mu     sync.Mutex
	sent   []channel.OutboundMessage
	result channel.SendResult
}

func (r *recordingAdapter) Platform() string { return "fake" }

func (r *recordingAdapter) VerifyWebhook(*http.Request) channel.WebhookVerification {
	return channel.WebhookVerification{Valid: true}
}

func (r *recordingAdapter) ParseWebhook(*http.Request) (*channel.InboundMessage, error) {
	return nil, channel.ErrNoMessage
}

func (r *recordingAdapter) SendMessage(ctx context.Context, msg channel.OutboundMessage) channel.SendResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.result
}

func (r *recordingAdapter) FormatContent(content string, mode channel.ParseMode) string {
	return content
}

func lookupOf(a channel.Adapter) AdapterLookup {
	return func(platform string) (channel.Adapter, bool) {
		if platform == "fake" {
			return a, true
		}
		return nil, false
	}
}

func TestNewScheduler(t *testing.T) {
	s, err := NewScheduler([]Notification{
		{Name: "daily", Schedule: "0 9 * * *", Platform: "fake", ChatID: "1", Message: "hi"},
		{Name: "hourly", Schedule: "@hourly", Platform: "fake", ChatID: "2", Message: "tick"},
	}, lookupOf(&recordingAdapter{}))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	s.Start()
	s.Stop()
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	_, err := NewScheduler([]Notification{{Name: "bad", Schedule: "every morning"}}, lookupOf(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestRun(t *testing.T) {
	fake := &recordingAdapter{result: channel.SendResult{Success: true}}
	s, err := NewScheduler(nil, lookupOf(fake))
	require.NoError(t, err)

	res := s.Run(context.Background(), Notification{
		Name:      "standup",
		Platform:  "fake",
		ChatID:    "chat-9",
		Message:   "**standup** in 5",
		ParseMode: "markdown",
		Metadata:  map[string]string{channel.MetaSessionWebhook: "https://hook"},
	})

	assert.True(t, res.Success)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "chat-9", fake.sent[0].ChatID)
	assert.Equal(t, "**standup** in 5", fake.sent[0].Content)
	assert.Equal(t, channel.ParseMarkdown, fake.sent[0].ParseMode)
	assert.Equal(t, "https://hook", fake.sent[0].Metadata[channel.MetaSessionWebhook])
}

func TestRun_Failures(t *testing.T) {
	fake := &recordingAdapter{result: channel.SendResult{Error: "chat not found"}}
	s, err := NewScheduler(nil, lookupOf(fake))
	require.NoError(t, err)

	res := s.Run(context.Background(), Notification{Platform: "fake", ChatID: "x", Message: "m"})
	assert.False(t, res.Success)
	assert.Equal(t, "chat not found", res.Error)

	res = s.Run(context.Background(), Notification{Platform: "slack", ChatID: "x", Message: "m"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "slack")
}
