package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatbridge",
	Short: "chatbridge is a webhook bridge connecting chat platforms with an assistant pipeline",
	Long: `chatbridge receives webhooks from chat platforms (Telegram, Discord,
Feishu/Lark, DingTalk), normalizes them into one message model, and answers
through a pluggable pipeline (echo or any OpenAI-compatible API).`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(webhookCmd)
	rootCmd.AddCommand(versionCmd)
}
