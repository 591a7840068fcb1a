package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"glucoheart/internal/config"
	"glucoheart/internal/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:           "glucoheart",
	Short:         "Glucoheart messaging: chat sessions and discussion rooms over REST and WebSocket",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var configPath string

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the TOML config file (overrides CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	if configPath != "" {
		config.SetPath(configPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
