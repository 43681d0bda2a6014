package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/keepmind9/chatbridge/internal/channel"
	_ "github.com/keepmind9/chatbridge/internal/channel/all"
	"github.com/keepmind9/chatbridge/internal/core"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/spf13/cobra"
)

var (
	webhookConfigFile string
	webhookURL        string
)

var webhookCmd = &cobra.Command{
	Use:   "webhook <platform>",
	Short: "Register this service's webhook URL with a platform",
	Long: `Register the webhook URL with platforms that support it through their API
(currently Telegram). The configured secret token is sent along.

The URL defaults to server.public_url + "/webhook/<platform>".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform := args[0]

		cfg, err := core.LoadConfig(webhookConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		bot, err := cfg.GetBotConfig(platform)
		if err != nil {
			return err
		}

		url := webhookURL
		if url == "" {
			if cfg.Server.PublicURL == "" {
				return fmt.Errorf("--url is required when server.public_url is not set")
			}
			url = strings.TrimRight(cfg.Server.PublicURL, "/") + "/webhook/" + platform
		}

		adapter := channel.GetChannelAdapter(platform, bot.ChannelConfig())
		registrar, ok := adapter.(channel.WebhookRegistrar)
		if !ok {
			return fmt.Errorf("%s webhooks are configured in the platform console, not through the API", platform)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), constants.DefaultHTTPTimeout)
		defer cancel()
		if err := registrar.SetWebhook(ctx, url); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s webhook set to %s\n", platform, url)
		return nil
	},
}

func init() {
	webhookCmd.Flags().StringVarP(&webhookConfigFile, "config", "c", "config.yaml", "Configuration file path")
	webhookCmd.Flags().StringVar(&webhookURL, "url", "", "Public webhook URL")
}
