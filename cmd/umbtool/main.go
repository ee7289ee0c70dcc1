// Umbtool is an operator utility for UMB road weather stations.
//
// It decodes captured frames, replays hex captures through the ingest
// pipeline, prints synthetic frames and acts as a station against a running
// ingest service.
//
// Usage:
//
//	umbtool [command] [flags]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "umbtool",
		Short: "Decode and simulate UMB road weather telemetry",
		Long: `umbtool works with the binary UMB frames sent by road weather stations.

It decodes single frames, replays hex captures into observations, generates
synthetic device pairs and can act as a station against an ingest service.`,
		SilenceUsage: true,
	}

	logLevel string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for diagnostics on stderr (debug, info, warn, error)")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(genCmd)
	rootCmd.AddCommand(simulateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stderrLogger keeps diagnostics off stdout, which carries command output.
func stderrLogger() *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
