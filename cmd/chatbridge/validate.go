package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/keepmind9/chatbridge/internal/core"
	"github.com/spf13/cobra"
)

var (
	validateConfigFile string
	validateShow       bool
	validateJSON       bool
)

var errInvalidConfig = errors.New("configuration is invalid")

// ValidationResult represents the validation result
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	Config        string   `json:"config"`
	Platforms     []string `json:"platforms,omitempty"`
	Pipeline      string   `json:"pipeline,omitempty"`
	Store         string   `json:"store,omitempty"`
	Notifications int      `json:"notifications"`
	Errors        []string `json:"errors,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate chatbridge configuration file",
	Long: `Validate the chatbridge configuration file without starting the service.

This command checks:
  - YAML syntax and ${ENV} references
  - Required bot credentials per platform
  - Engine timeouts and notification schedules

Exit codes:
  0 - Configuration is valid
  1 - Configuration has errors`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		configFile := validateConfigFile
		if configFile == "" {
			configFile = findDefaultConfig()
		}
		if configFile == "" {
			fmt.Fprintln(out, "❌ No configuration file found")
			fmt.Fprintln(out, "\nSpecify a config file with --config or ensure one exists at:")
			for _, loc := range defaultConfigLocations() {
				fmt.Fprintf(out, "  - %s\n", loc)
			}
			return errInvalidConfig
		}

		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			outputValidationResult(out, ValidationResult{
				Valid:  false,
				Config: configFile,
				Errors: []string{err.Error()},
			}, validateJSON)
			return errInvalidConfig
		}

		result := ValidationResult{
			Valid:         true,
			Config:        configFile,
			Platforms:     cfg.EnabledPlatforms(),
			Pipeline:      orDefault(cfg.Pipeline.Type, "echo"),
			Store:         orDefault(cfg.Store.Type, "memory"),
			Notifications: len(cfg.Notifications),
			Warnings:      validateConfigDetails(cfg),
		}

		if validateShow && !validateJSON {
			showConfig(out, configFile, cfg)
		}

		outputValidationResult(out, result, validateJSON)
		return nil
	},
}

func defaultConfigLocations() []string {
	return []string{
		"config.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/chatbridge/config.yaml"),
		"/etc/chatbridge/config.yaml",
	}
}

func findDefaultConfig() string {
	for _, loc := range defaultConfigLocations() {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func showConfig(out io.Writer, configFile string, cfg *core.Config) {
	fmt.Fprintf(out, "✓ Configuration loaded: %s\n\n", configFile)
	fmt.Fprintf(out, "Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)

	names := make([]string, 0, len(cfg.Bots))
	for name := range cfg.Bots {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "\nBots (%d):\n", len(names))
	for _, name := range names {
		status := "disabled"
		if cfg.Bots[name].Enabled {
			status = "enabled"
		}
		fmt.Fprintf(out, "  - %s: %s\n", name, status)
	}

	fmt.Fprintf(out, "\nPipeline: %s", orDefault(cfg.Pipeline.Type, "echo"))
	if cfg.Pipeline.Model != "" {
		fmt.Fprintf(out, " (%s)", cfg.Pipeline.Model)
	}
	fmt.Fprintf(out, "\nStore: %s\n", orDefault(cfg.Store.Type, "memory"))

	fmt.Fprintf(out, "\nNotifications (%d):\n", len(cfg.Notifications))
	for _, n := range cfg.Notifications {
		fmt.Fprintf(out, "  - %s: %s -> %s/%s\n", n.Name, n.Schedule, n.Platform, n.ChatID)
	}
	fmt.Fprintln(out)
}

func outputValidationResult(out io.Writer, result ValidationResult, jsonFormat bool) {
	if jsonFormat {
		output, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(out, "{\"error\": \"failed to marshal json: %v\"}\n", err)
			return
		}
		fmt.Fprintln(out, string(output))
		return
	}

	if result.Valid {
		fmt.Fprintln(out, "✓ Configuration is valid")
		fmt.Fprintf(out, "  - Config: %s\n", result.Config)
		fmt.Fprintf(out, "  - Platforms: %v\n", result.Platforms)
		fmt.Fprintf(out, "  - Pipeline: %s\n", result.Pipeline)
		fmt.Fprintf(out, "  - Store: %s\n", result.Store)
		fmt.Fprintf(out, "  - Notifications: %d\n", result.Notifications)
		if len(result.Warnings) > 0 {
			fmt.Fprintln(out, "\n⚠️  Warnings:")
			for _, warning := range result.Warnings {
				fmt.Fprintf(out, "  - %s\n", warning)
			}
		}
		return
	}

	fmt.Fprintln(out, "❌ Configuration validation failed:")
	if len(result.Errors) > 0 {
		fmt.Fprintln(out, "\nErrors:")
		for _, errMsg := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", errMsg)
		}
	}
}

// validateConfigDetails returns non-fatal findings
func validateConfigDetails(cfg *core.Config) []string {
	var warnings []string

	if !cfg.Security.WhitelistEnabled {
		warnings = append(warnings, "Whitelist is disabled - this is a security risk")
	}

	if bot, ok := cfg.Bots["telegram"]; ok && bot.Enabled && bot.SecretToken == "" {
		warnings = append(warnings, "Telegram secret_token is empty - webhook requests are not authenticated")
	}
	if bot, ok := cfg.Bots["feishu"]; ok && bot.Enabled && bot.EncryptKey == "" && bot.VerificationToken == "" {
		warnings = append(warnings, "Feishu has neither encrypt_key nor verification_token - webhook requests are not authenticated")
	}
	if bot, ok := cfg.Bots["dingtalk"]; ok && bot.Enabled && bot.AppSecret == "" {
		warnings = append(warnings, "DingTalk app_secret is empty - callback signatures are not checked")
	}

	if cfg.Pipeline.Type == "openai" && cfg.Pipeline.SystemPrompt == "" {
		warnings = append(warnings, "OpenAI pipeline has no system_prompt")
	}

	return warnings
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "config", "c", "", "Configuration file path")
	validateCmd.Flags().BoolVar(&validateShow, "show", false, "Show full configuration details")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output in JSON format")
}
