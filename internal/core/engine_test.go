package core

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter is a scriptable channel.Adapter with every optional capability
type fakeAdapter struct {
	channel.Base
	name string

	verification channel.WebhookVerification
	parsed       *channel.InboundMessage
	parseErr     error
	deferred     any
	healthErr    error

	mu      sync.Mutex
	sent    []channel.OutboundMessage
	typing  []string
	acked   []string
	sendErr string
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, verification: channel.WebhookVerification{Valid: true}}
}

func (f *fakeAdapter) Platform() string { return f.name }

func (f *fakeAdapter) VerifyWebhook(r *http.Request) channel.WebhookVerification {
	return f.verification
}

func (f *fakeAdapter) ParseWebhook(r *http.Request) (*channel.InboundMessage, error) {
	return f.parsed, f.parseErr
}

func (f *fakeAdapter) SendMessage(ctx context.Context, msg channel.OutboundMessage) channel.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.sendErr != "" {
		return channel.SendResult{Error: f.sendErr}
	}
	return channel.SendResult{Success: true, MessageID: "m1"}
}

func (f *fakeAdapter) FormatContent(content string, mode channel.ParseMode) string {
	return content
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeAdapter) SendTypingIndicator(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, chatID)
	return nil
}

func (f *fakeAdapter) AcknowledgeCallback(ctx context.Context, msg *channel.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, msg.Meta(channel.MetaCallbackQueryID))
	return nil
}

func (f *fakeAdapter) DeferredAck(msg *channel.InboundMessage) (any, bool) {
	if f.deferred == nil {
		return nil, false
	}
	return f.deferred, true
}

func (f *fakeAdapter) lastSent(t *testing.T) channel.OutboundMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type failingPipeline struct{}

func (failingPipeline) Complete(ctx context.Context, conversationID, userText, userID string) (string, error) {
	return "", errors.New("upstream 500: secret details")
}

type blankPipeline struct{}

func (blankPipeline) Complete(ctx context.Context, conversationID, userText, userID string) (string, error) {
	return " \n ", nil
}

type recordingPipeline struct {
	conversations []string
	forgotten     []string
}

func (p *recordingPipeline) Complete(ctx context.Context, conversationID, userText, userID string) (string, error) {
	p.conversations = append(p.conversations, conversationID)
	return "answer to " + userText, nil
}

func (p *recordingPipeline) Forget(conversationID string) {
	p.forgotten = append(p.forgotten, conversationID)
}

var _ pipeline.Forgetter = (*recordingPipeline)(nil)

func newTestEngine(t *testing.T, mutate func(c *Config)) (*Engine, *fakeAdapter) {
	t.Helper()
	c := validConfig()
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, validateConfig(c))

	e, err := NewEngine(c)
	require.NoError(t, err)
	t.Cleanup(func() { e.cancel() })

	fake := newFakeAdapter("telegram")
	e.RegisterAdapter("telegram", fake)
	return e, fake
}

func textMessage(content string) *channel.InboundMessage {
	return &channel.InboundMessage{
		ID:         "100",
		Channel:    "telegram",
		SenderID:   "42|ada",
		SenderName: "Ada",
		ChatID:     "42",
		ChatType:   channel.ChatPrivate,
		Content:    content,
		Metadata:   map[string]string{"update_id": "7"},
	}
}

func TestHandleMessage_PipelineReply(t *testing.T) {
	e, fake := newTestEngine(t, func(c *Config) { c.Pipeline.EchoPrefix = "you said: " })

	e.HandleMessage(context.Background(), "telegram", textMessage("hello"))

	sent := fake.lastSent(t)
	assert.Equal(t, "42", sent.ChatID)
	assert.Equal(t, "you said: hello", sent.Content)
	assert.Equal(t, "100", sent.ReplyTo)
	assert.Equal(t, channel.ParseMarkdown, sent.ParseMode)
	assert.Equal(t, "7", sent.Metadata["update_id"])
}

func TestHandleMessage_ConversationIsStablePerChat(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	p := &recordingPipeline{}
	e.pipeline = p

	e.HandleMessage(context.Background(), "telegram", textMessage("one"))
	e.HandleMessage(context.Background(), "telegram", textMessage("two"))
	require.Len(t, p.conversations, 2)
	assert.Equal(t, p.conversations[0], p.conversations[1])

	e.HandleMessage(context.Background(), "telegram", textMessage("reset"))
	require.Len(t, p.forgotten, 1)
	assert.Equal(t, p.conversations[0], p.forgotten[0])

	e.HandleMessage(context.Background(), "telegram", textMessage("three"))
	require.Len(t, p.conversations, 3)
	assert.NotEqual(t, p.conversations[0], p.conversations[2])
}

func TestHandleMessage_PipelineErrorIsHidden(t *testing.T) {
	e, fake := newTestEngine(t, nil)
	e.pipeline = failingPipeline{}

	e.HandleMessage(context.Background(), "telegram", textMessage("hello"))

	sent := fake.lastSent(t)
	assert.Equal(t, DefaultErrorMessage, sent.Content)
	assert.NotContains(t, sent.Content, "secret")
}

func TestHandleMessage_BlankAnswerStillReplies(t *testing.T) {
	e, fake := newTestEngine(t, nil)
	e.pipeline = blankPipeline{}

	msg := textMessage("hello")
	msg.ReplyTo = "orig"
	msg.Metadata[channel.MetaInteractionToken] = "itoken"
	e.HandleMessage(context.Background(), "telegram", msg)

	require.Len(t, fake.sent, 1)
	sent := fake.sent[0]
	assert.Equal(t, DefaultEmptyAnswerMessage, sent.Content)
	assert.Equal(t, "itoken", sent.Metadata[channel.MetaInteractionToken])
	assert.Equal(t, "orig", sent.ReplyTo)
}

func TestHandleMessage_Unauthorized(t *testing.T) {
	e, fake := newTestEngine(t, func(c *Config) {
		c.Security.WhitelistEnabled = true
		c.Security.AllowedUsers = map[string][]string{"telegram": {"someone-else"}}
	})

	e.HandleMessage(context.Background(), "telegram", textMessage("hello"))
	assert.Contains(t, fake.lastSent(t).Content, "Unauthorized")

	e.config.Security.AllowedUsers["telegram"] = []string{"ada"}
	e.HandleMessage(context.Background(), "telegram", textMessage("hello"))
	assert.Equal(t, "hello", fake.lastSent(t).Content)
}

func TestHandleMessage_SpecialCommands(t *testing.T) {
	e, fake := newTestEngine(t, nil)

	e.HandleMessage(context.Background(), "telegram", textMessage("help"))
	assert.Contains(t, fake.lastSent(t).Content, "Special Commands")

	msg := textMessage("/whoami@my_bot")
	e.HandleMessage(context.Background(), "telegram", msg)
	assert.Contains(t, fake.lastSent(t).Content, "`42|ada`")

	msg = textMessage("/status")
	msg.Metadata[channel.MetaCommand] = "status"
	e.HandleMessage(context.Background(), "telegram", msg)
	assert.Contains(t, fake.lastSent(t).Content, "telegram")

	e.HandleMessage(context.Background(), "telegram", textMessage("reset"))
	assert.Contains(t, fake.lastSent(t).Content, "Conversation reset")
}

func TestHandleMessage_CallbackAndTyping(t *testing.T) {
	e, fake := newTestEngine(t, func(c *Config) { c.Engine.TypingIndicator = true })

	msg := textMessage("approve")
	msg.ID = "cbq-1"
	msg.ReplyTo = "55"
	msg.Metadata[channel.MetaCallbackQueryID] = "cbq-1"

	e.HandleMessage(context.Background(), "telegram", msg)

	assert.Equal(t, []string{"cbq-1"}, fake.acked)
	assert.Equal(t, []string{"42"}, fake.typing)
	assert.Equal(t, "55", fake.lastSent(t).ReplyTo)
}

func TestHandleMessage_UnknownPlatform(t *testing.T) {
	e, fake := newTestEngine(t, nil)
	e.HandleMessage(context.Background(), "slack", textMessage("hi"))
	assert.Empty(t, fake.sent)
}

func TestIsSpecialCommand(t *testing.T) {
	cmd, ok, args := isSpecialCommand("reset", false)
	assert.True(t, ok)
	assert.Equal(t, "reset", cmd)
	assert.Nil(t, args)

	cmd, ok, args = isSpecialCommand("help me", true)
	assert.True(t, ok)
	assert.Equal(t, "help", cmd)
	assert.Equal(t, []string{"me"}, args)

	_, ok, _ = isSpecialCommand("help me", false)
	assert.False(t, ok)
	_, ok, _ = isSpecialCommand("Help", false)
	assert.False(t, ok)
	_, ok, _ = isSpecialCommand("please reset", true)
	assert.False(t, ok)
	_, ok, _ = isSpecialCommand("reset "+strings.Repeat("x", 20000), true)
	assert.False(t, ok)
}

func TestCommandInput(t *testing.T) {
	tests := []struct {
		name         string
		msg          *channel.InboundMessage
		wantInput    string
		wantExplicit bool
	}{
		{"slash", &channel.InboundMessage{Content: " /help "}, "help", true},
		{"slash with bot", &channel.InboundMessage{Content: "/help@bot"}, "help", true},
		{"slash with args", &channel.InboundMessage{Content: "/help@bot now"}, "help now", true},
		{"bare word", &channel.InboundMessage{Content: "reset my router how?"}, "reset my router how?", false},
		{"platform command", &channel.InboundMessage{
			Content:  "ignored",
			Metadata: map[string]string{channel.MetaCommand: "status"},
		}, "status", true},
		{"other platform command", &channel.InboundMessage{
			Content:  "what is go",
			Metadata: map[string]string{channel.MetaCommand: "ask"},
		}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, explicit := commandInput(tt.msg)
			assert.Equal(t, tt.wantInput, input)
			assert.Equal(t, tt.wantExplicit, explicit)
		})
	}
}

func TestHandleMessage_SentencesReachPipeline(t *testing.T) {
	e, fake := newTestEngine(t, nil)

	for _, text := range []string{
		"help me write a cover letter",
		"status of the Apollo program",
		"reset my router how?",
	} {
		e.HandleMessage(context.Background(), "telegram", textMessage(text))
		assert.Equal(t, text, fake.lastSent(t).Content)
	}

	e.HandleMessage(context.Background(), "telegram", textMessage("/reset now"))
	assert.Contains(t, fake.lastSent(t).Content, "Conversation reset")
}

func TestWorkersDrainQueue(t *testing.T) {
	e, fake := newTestEngine(t, nil)
	e.startWorkers()

	for i := 0; i < 5; i++ {
		require.True(t, e.enqueue("telegram", textMessage("hi")))
	}

	assert.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.sent) == 5
	}, testTimeout, testTick)

	require.NoError(t, e.Stop())
}

func TestBuildAdapters(t *testing.T) {
	c := validConfig()
	c.Bots["dingtalk"] = BotConfig{Enabled: true}
	require.NoError(t, validateConfig(c))

	e, err := NewEngine(c)
	require.NoError(t, err)
	require.NoError(t, e.BuildAdapters())

	assert.Equal(t, []string{"dingtalk", "telegram"}, e.platforms())
	a, ok := e.Adapter("dingtalk")
	require.True(t, ok)
	assert.Equal(t, "dingtalk", a.Platform())
}

// listeningAdapter delivers one message through Listen
type listeningAdapter struct {
	*fakeAdapter
	msg *channel.InboundMessage
}

func (l *listeningAdapter) Listen(ctx context.Context, handler func(*channel.InboundMessage)) error {
	handler(l.msg)
	<-ctx.Done()
	return nil
}

func TestListenersFeedWorkers(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.Bots["telegram"] = BotConfig{Enabled: true, Token: "t", Mode: ModePolling}
	})
	l := &listeningAdapter{fakeAdapter: newFakeAdapter("telegram"), msg: textMessage("polled")}
	e.RegisterAdapter("telegram", l)

	e.startWorkers()
	e.startListeners(e.ctx)

	assert.Eventually(t, func() bool {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(l.sent) == 1 && l.sent[0].Content == "polled"
	}, testTimeout, testTick)

	require.NoError(t, e.Stop())
}
