package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/keepmind9/chatbridge/internal/core"
	"github.com/keepmind9/chatbridge/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile    string
	serveValidate bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the chatbridge webhook server",
		Long:  "Start the webhook server, build adapters for every enabled bot and answer messages through the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := core.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if serveValidate {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration is valid: %s\n", configFile)
				return nil
			}

			if err := logger.InitLogger(config.LoggerConfig()); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			logger.WithFields(logrus.Fields{
				"config_file": configFile,
				"log_level":   config.Logging.Level,
				"log_file":    config.Logging.File,
				"platforms":   config.EnabledPlatforms(),
				"whitelist":   config.Security.WhitelistEnabled,
			}).Info("logger-initialized")

			engine, err := core.NewEngine(config)
			if err != nil {
				return fmt.Errorf("failed to create engine: %w", err)
			}
			if err := engine.BuildAdapters(); err != nil {
				return fmt.Errorf("failed to build adapters: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "chatbridge listening on :%d (Ctrl+C to stop)\n", config.Server.Port)
			runErr := engine.Run(ctx)
			if err := engine.Stop(); err != nil {
				logger.WithField("error", err).Error("error-during-shutdown")
			}
			return runErr
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "Configuration file path")
	serveCmd.Flags().BoolVar(&serveValidate, "validate", false, "Validate configuration and exit")
}
