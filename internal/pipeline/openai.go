package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	defaultModel      = openai.GPT4oMini
	defaultMaxHistory = 20
)

// OpenAI completes with any OpenAI-compatible chat completion endpoint and
// keeps a bounded in-memory history per conversation
type OpenAI struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxHistory   int
	maxTokens    int
	temperature  float32

	mu      sync.Mutex
	history map[string][]openai.ChatCompletionMessage
}

// NewOpenAI builds an OpenAI pipeline
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai pipeline requires api_key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	p := &OpenAI{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxHistory:   cfg.MaxHistory,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		history:      make(map[string][]openai.ChatCompletionMessage),
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if p.maxHistory <= 0 {
		p.maxHistory = defaultMaxHistory
	}
	return p, nil
}

// Complete sends the conversation history plus userText and records the
// exchange on success
func (p *OpenAI) Complete(ctx context.Context, conversationID, userText, userID string) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText}

	p.mu.Lock()
	past := append([]openai.ChatCompletionMessage(nil), p.history[conversationID]...)
	p.mu.Unlock()

	messages := make([]openai.ChatCompletionMessage, 0, len(past)+2)
	if p.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt})
	}
	messages = append(messages, past...)
	messages = append(messages, user)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		User:        userID,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	reply := resp.Choices[0].Message.Content

	p.mu.Lock()
	turns := append(p.history[conversationID], user,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply})
	if len(turns) > p.maxHistory {
		turns = turns[len(turns)-p.maxHistory:]
	}
	p.history[conversationID] = turns
	p.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"model":           p.model,
		"total_tokens":    resp.Usage.TotalTokens,
	}).Debug("chat-completion-finished")

	return reply, nil
}

// Forget drops the stored history of a conversation
func (p *OpenAI) Forget(conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.history, conversationID)
}
