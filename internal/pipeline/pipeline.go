// Package pipeline produces replies for inbound chat messages
package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Pipeline turns one user message into a reply within a conversation
type Pipeline interface {
	Complete(ctx context.Context, conversationID, userText, userID string) (string, error)
}

// Forgetter is implemented by pipelines that keep per-conversation state
type Forgetter interface {
	Forget(conversationID string)
}

// Config selects and configures a pipeline
type Config struct {
	// Type is "echo" or "openai"
	Type         string  `yaml:"type"`
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	MaxHistory   int     `yaml:"max_history"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
	EchoPrefix   string  `yaml:"echo_prefix"`
}

// New builds the pipeline named by cfg.Type
func New(cfg Config) (Pipeline, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "echo":
		return &Echo{Prefix: cfg.EchoPrefix}, nil
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown pipeline type: %s", cfg.Type)
	}
}

// Echo replies with the user's own text. Useful for wiring checks.
type Echo struct {
	Prefix string
}

// Complete returns the prefixed user text
func (e *Echo) Complete(ctx context.Context, conversationID, userText, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Prefix + userText, nil
}
