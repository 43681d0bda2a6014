package core

import (
	"github.com/keepmind9/chatbridge/internal/pipeline"
	"github.com/keepmind9/chatbridge/internal/scheduler"
	"github.com/keepmind9/chatbridge/internal/store"
)

// Config represents the complete chatbridge configuration structure
type Config struct {
	Server        ServerConfig             `yaml:"server"`
	Security      SecurityConfig           `yaml:"security"`
	Engine        EngineConfig             `yaml:"engine"`
	Bots          map[string]BotConfig     `yaml:"bots"`
	Pipeline      pipeline.Config          `yaml:"pipeline"`
	Store         store.Config             `yaml:"store"`
	Notifications []scheduler.Notification `yaml:"notifications"`
	Logging       LoggingConfig            `yaml:"logging"`
}

// ServerConfig represents the webhook HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is the externally reachable base, used when registering webhooks
	PublicURL string `yaml:"public_url"`
}

// SecurityConfig represents security and access control configuration
type SecurityConfig struct {
	WhitelistEnabled bool                `yaml:"whitelist_enabled"`
	AllowedUsers     map[string][]string `yaml:"allowed_users"`
	Admins           map[string][]string `yaml:"admins"`
}

// EngineConfig controls message processing
type EngineConfig struct {
	Workers            int    `yaml:"workers"`
	ProcessTimeout     string `yaml:"process_timeout"` // e.g. "2m"
	TypingIndicator    bool   `yaml:"typing_indicator"`
	ErrorMessage       string `yaml:"error_message"`
	EmptyAnswerMessage string `yaml:"empty_answer_message"` // sent when the pipeline answers with blank text
}

// BotConfig represents per-platform credentials
type BotConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Mode              string `yaml:"mode"`               // webhook (default), polling (Telegram), stream (DingTalk)
	Token             string `yaml:"token"`              // Telegram, Discord
	SecretToken       string `yaml:"secret_token"`       // Telegram webhook secret
	ApplicationID     string `yaml:"application_id"`     // Discord
	PublicKey         string `yaml:"public_key"`         // Discord, hex ed25519
	AppID             string `yaml:"app_id"`             // Feishu
	AppSecret         string `yaml:"app_secret"`         // Feishu, DingTalk
	EncryptKey        string `yaml:"encrypt_key"`        // Feishu: event encryption key (optional)
	VerificationToken string `yaml:"verification_token"` // Feishu: verification token (optional)
	Domain            string `yaml:"domain"`             // Feishu: "feishu" or "lark"
	APIBaseURL        string `yaml:"api_base_url"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json or text
	File         string `yaml:"file"`          // Log file path
	MaxSize      int    `yaml:"max_size"`      // Single file max size in MB (default: 100)
	MaxBackups   int    `yaml:"max_backups"`   // Number of backups to keep (default: 5)
	MaxAge       int    `yaml:"max_age"`       // Maximum days to retain (default: 30)
	Compress     bool   `yaml:"compress"`      // Whether to compress old logs (default: true)
	EnableStdout bool   `yaml:"enable_stdout"` // Also output to stdout (default: true)
}
