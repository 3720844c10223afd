package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"turnstream/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "turnstream",
	Short: "Chat turn server with resumable streams",
	// serve is the default so the binary still starts the server without arguments
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(streamCmd)
}

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and installs the process logger as the slog default
func loadConfig() (*config.Config, *slog.Logger, func() error) {
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.Environment, cfg.LogDir, cfg.LogMaxFiles)
	slog.SetDefault(logger)
	return cfg, logger, closeLog
}
