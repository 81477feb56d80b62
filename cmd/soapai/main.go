package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Charugundlavipul/soapai-cli/internal/api"
	"github.com/Charugundlavipul/soapai-cli/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "soapai",
	Short: "Companion client for session capture and AI activity plans",
	Long: `soapai records therapy sessions, uploads them to the practice backend,
and drives the draft/preview/confirm activity-plan generator, saving the
confirmed plan as a per-patient PDF material.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
}

// loadConfig loads the config or exits; commands call it at the top of
// their RunE.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newClient(cfg *config.Config) *api.Client {
	return api.New(cfg.BaseURL, cfg.Token)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
