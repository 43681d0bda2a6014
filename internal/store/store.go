// Package store links platform chats to internal conversation ids
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChannelRecord links one platform chat to a conversation
type ChannelRecord struct {
	Platform       string    `json:"platform"`
	ChatID         string    `json:"chat_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store resolves and resets ChannelRecords
type Store interface {
	// Resolve returns the record for (platform, chatID), creating it with a
	// fresh conversation id on first use
	Resolve(ctx context.Context, platform, chatID, userID string) (ChannelRecord, error)
	// Reset forgets the record so the next Resolve starts a new conversation
	Reset(ctx context.Context, platform, chatID string) error
	Close() error
}

// Config selects the backend
type Config struct {
	// Type is "memory" (default) or "redis"
	Type      string        `yaml:"type"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// New builds the store named by cfg.Type
func New(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(cfg)
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}

func newRecord(platform, chatID, userID string) ChannelRecord {
	return ChannelRecord{
		Platform:       platform,
		ChatID:         chatID,
		UserID:         userID,
		ConversationID: uuid.NewString(),
		CreatedAt:      time.Now(),
	}
}
