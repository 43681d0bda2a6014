// Package core provides the central engine and configuration management for chatbridge.
//
// The core package connects messaging platforms with the chat pipeline. It handles:
//
//   - Configuration loading and validation (from YAML files)
//   - Building channel adapters for the enabled platforms
//   - The webhook HTTP server (/webhook/{platform}, /healthz, /metrics)
//   - Routing inbound messages through special commands or the pipeline
//   - Graceful shutdown and cleanup
//
// # Configuration
//
// Configuration is loaded from a YAML file with the following main sections:
//
//   - server: webhook listener settings
//   - security: access control and whitelisting
//   - engine: worker count and timeouts
//   - bots: per-platform credentials
//   - pipeline: reply generation (echo or openai)
//   - store: conversation store (memory or redis)
//   - notifications: cron scheduled messages
//   - logging: log configuration
//
// # Example Configuration
//
//	server:
//	  port: 8080
//	bots:
//	  telegram:
//	    enabled: true
//	    token: "${TELEGRAM_BOT_TOKEN}"
//	    secret_token: "${TELEGRAM_SECRET}"
//	pipeline:
//	  type: openai
//	  api_key: "${OPENAI_API_KEY}"
package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/keepmind9/chatbridge/internal/channel"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultLogMaxSize      = constants.DefaultLogMaxSize
	DefaultLogMaxBackups   = 5
	DefaultLogMaxAge       = constants.DefaultLogMaxAge
	DefaultLogCompress     = true
	DefaultLogEnableStdout = true

	DefaultWorkers        = 4
	DefaultProcessTimeout = "2m"
	DefaultErrorMessage   = "Sorry, something went wrong. Please try again later."

	DefaultEmptyAnswerMessage = "I don't have an answer for that."
)

// requiredBotFields lists the credentials each platform cannot start without
var requiredBotFields = map[string][]string{
	"telegram": {"token"},
	"discord":  {"token", "application_id", "public_key"},
	"feishu":   {"app_id", "app_secret"},
}

// Receive modes besides webhooks, per platform
const (
	ModeWebhook = "webhook"
	ModePolling = "polling"
	ModeStream  = "stream"
)

var listenModes = map[string]string{
	"telegram": ModePolling,
	"dingtalk": ModeStream,
}

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	// boolean defaults are seeded before decoding so an explicit false survives
	config := Config{
		Logging: LoggingConfig{
			Compress:     DefaultLogCompress,
			EnableStdout: DefaultLogEnableStdout,
		},
	}
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig fills defaults and performs basic validation on the configuration
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		config.Server.Port = DefaultServerPort
	}
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", config.Server.Port)
	}

	// Set default logging configuration
	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = DefaultLogMaxAge
	}

	// Engine defaults
	if config.Engine.Workers == 0 {
		config.Engine.Workers = DefaultWorkers
	}
	if config.Engine.Workers < 1 || config.Engine.Workers > 256 {
		return fmt.Errorf("engine.workers must be between 1 and 256 (got %d)", config.Engine.Workers)
	}
	if config.Engine.ProcessTimeout == "" {
		config.Engine.ProcessTimeout = DefaultProcessTimeout
	}
	timeout, err := time.ParseDuration(config.Engine.ProcessTimeout)
	if err != nil {
		return fmt.Errorf("invalid engine.process_timeout: %w", err)
	}
	if timeout < time.Second || timeout > 30*time.Minute {
		return fmt.Errorf("engine.process_timeout must be between 1s and 30m (got %v)", timeout)
	}
	if config.Engine.ErrorMessage == "" {
		config.Engine.ErrorMessage = DefaultErrorMessage
	}
	if config.Engine.EmptyAnswerMessage == "" {
		config.Engine.EmptyAnswerMessage = DefaultEmptyAnswerMessage
	}

	// Validate bots
	if len(config.Bots) == 0 {
		return fmt.Errorf("at least one bot must be configured")
	}
	registered := make(map[string]bool)
	for _, p := range channel.GetRegisteredPlatforms() {
		registered[p] = true
	}
	enabled := 0
	for platform, bot := range config.Bots {
		if !registered[platform] {
			return fmt.Errorf("unsupported bot platform: %s", platform)
		}
		if !bot.Enabled {
			continue
		}
		enabled++
		for _, field := range requiredBotFields[platform] {
			if bot.field(field) == "" {
				return fmt.Errorf("bots.%s.%s is required", platform, field)
			}
		}
		if bot.Mode == "" {
			bot.Mode = ModeWebhook
			config.Bots[platform] = bot
		}
		if bot.Mode != ModeWebhook && bot.Mode != listenModes[platform] {
			return fmt.Errorf("bots.%s.mode %q is not supported", platform, bot.Mode)
		}
		if bot.Mode == ModeStream && (bot.AppID == "" || bot.AppSecret == "") {
			return fmt.Errorf("bots.%s: stream mode requires app_id and app_secret", platform)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one bot must be enabled")
	}

	// Validate security settings
	if config.Security.WhitelistEnabled {
		if len(config.Security.AllowedUsers) == 0 {
			return fmt.Errorf("security.allowed_users cannot be empty when whitelist is enabled")
		}
	}

	switch strings.ToLower(config.Pipeline.Type) {
	case "", "echo":
	case "openai":
		if config.Pipeline.APIKey == "" {
			return fmt.Errorf("pipeline.api_key is required for the openai pipeline")
		}
	default:
		return fmt.Errorf("unknown pipeline type: %s", config.Pipeline.Type)
	}

	switch strings.ToLower(config.Store.Type) {
	case "", "memory":
	case "redis":
		if config.Store.Addr == "" {
			return fmt.Errorf("store.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store type: %s", config.Store.Type)
	}

	// Notifications must target an enabled bot
	for i, n := range config.Notifications {
		if n.Schedule == "" || n.ChatID == "" || n.Message == "" {
			return fmt.Errorf("notifications[%d]: schedule, chat_id and message are required", i)
		}
		if bot, ok := config.Bots[n.Platform]; !ok || !bot.Enabled {
			return fmt.Errorf("notifications[%d]: platform %s is not an enabled bot", i, n.Platform)
		}
		if n.Name == "" {
			config.Notifications[i].Name = fmt.Sprintf("%s-%d", n.Platform, i)
		}
	}

	return nil
}

func (b BotConfig) field(name string) string {
	switch name {
	case "token":
		return b.Token
	case "application_id":
		return b.ApplicationID
	case "public_key":
		return b.PublicKey
	case "app_id":
		return b.AppID
	case "app_secret":
		return b.AppSecret
	}
	return ""
}

// ChannelConfig converts the YAML bot section into adapter credentials
func (b BotConfig) ChannelConfig() channel.Config {
	return channel.Config{
		Token:             b.Token,
		SecretToken:       b.SecretToken,
		ApplicationID:     b.ApplicationID,
		PublicKey:         b.PublicKey,
		AppID:             b.AppID,
		AppSecret:         b.AppSecret,
		EncryptKey:        b.EncryptKey,
		VerificationToken: b.VerificationToken,
		Domain:            b.Domain,
		APIBaseURL:        b.APIBaseURL,
	}
}

// GetBotConfig retrieves configuration for a specific bot
func (c *Config) GetBotConfig(botType string) (BotConfig, error) {
	bot, exists := c.Bots[botType]
	if !exists {
		return BotConfig{}, fmt.Errorf("bot type %s not found in configuration", botType)
	}

	if !bot.Enabled {
		return BotConfig{}, fmt.Errorf("bot type %s is disabled", botType)
	}

	return bot, nil
}

// EnabledPlatforms returns the enabled bot names
func (c *Config) EnabledPlatforms() []string {
	var out []string
	for _, p := range channel.GetRegisteredPlatforms() {
		if bot, ok := c.Bots[p]; ok && bot.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Listens reports whether the bot receives over a long-lived connection
func (b BotConfig) Listens() bool {
	return b.Mode != "" && b.Mode != ModeWebhook
}

// ProcessTimeout returns the parsed engine.process_timeout
func (c *Config) ProcessTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.ProcessTimeout)
	if err != nil || d <= 0 {
		return constants.DefaultProcessTimeout
	}
	return d
}

// LoggerConfig converts the logging section for logger.InitLogger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:        c.Logging.Level,
		Format:       c.Logging.Format,
		File:         c.Logging.File,
		MaxSize:      c.Logging.MaxSize,
		MaxBackups:   c.Logging.MaxBackups,
		MaxAge:       c.Logging.MaxAge,
		Compress:     c.Logging.Compress,
		EnableStdout: c.Logging.EnableStdout,
	}
}

// IsUserAuthorized checks if a user is in the whitelist.
// Composite sender ids ("id|username") match on either half.
func (c *Config) IsUserAuthorized(platform, userID string) bool {
	// If whitelist is disabled, allow all users (warning: not recommended for production)
	if !c.Security.WhitelistEnabled {
		return true
	}

	userIDs, exists := c.Security.AllowedUsers[platform]
	if !exists {
		return false
	}
	return matchesAny(userIDs, userID)
}

// IsAdmin checks if a user is an admin
func (c *Config) IsAdmin(platform, userID string) bool {
	admins, exists := c.Security.Admins[platform]
	if !exists {
		return false
	}
	return matchesAny(admins, userID)
}

func matchesAny(list []string, userID string) bool {
	candidates := []string{userID}
	if id, name, ok := strings.Cut(userID, "|"); ok {
		candidates = append(candidates, id, name, "@"+name)
	}
	for _, allowed := range list {
		for _, c := range candidates {
			if c != "" && c != "@" && allowed == c {
				return true
			}
		}
	}
	return false
}
