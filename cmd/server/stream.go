package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"turnstream/internal/background"
	"turnstream/internal/service/llm/streaming"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Inspect resumable streams in the chunk store",
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <stream-id>",
	Short: "Print the state and text length of a stream record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, closeLog := loadConfig()
		defer closeLog()

		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required: the in-memory store is local to the server process")
		}

		store, closeStore, err := openChunkStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		// Inspect never runs background work; the runner only satisfies the constructor
		coordinator := streaming.NewCoordinator(store, background.New(logger, 0), streaming.CoordinatorConfig{
			KeyPrefix: cfg.StreamKeyPrefix,
			TTL:       cfg.StreamTTL,
		}, logger)

		info, err := coordinator.Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "stream:  %s\n", info.StreamID)
		fmt.Fprintf(out, "state:   %s\n", info.State)
		if info.TextPresent {
			fmt.Fprintf(out, "text:    %d chars\n", info.TextChars)
		} else {
			fmt.Fprintln(out, "text:    (none)")
		}
		return nil
	},
}

func init() {
	streamCmd.AddCommand(inspectCmd)
}
