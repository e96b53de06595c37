package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatcache/internal/app"
	"chatcache/internal/infra/config"
	"chatcache/internal/remote"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "chatcache",
	Short: "Inspect and maintain a local conversation cache",
	Long: `chatcache opens the on-disk cache of conversations, messages,
participants and media, and prints or clears its contents.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("store", "", "store directory (overrides config)")
}

// openApp opens the cache offline.
func openApp(cmd *cobra.Command) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.StorePath = store
	}
	if os.Getenv("CHATCACHE_LOG_LEVEL") == "" {
		cfg.LogLevel = "WARN"
	}
	return app.New(cfg, remote.Offline{}, nil)
}
