package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailarchive/internal/model"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailarchive",
		Short: "Incrementally archive an IMAP mailbox into a local SQLite store",
	}
	rootCmd.PersistentFlags().String("config", "config.json", "Path to the JSON configuration file")

	rootCmd.AddCommand(
		newArchiveCmd(),
		newQueryCmd(),
		newStatsCmd(),
		newAuthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*model.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return model.LoadConfig(path)
}

func setupLogger(logLevel string) *slog.Logger {
	level := new(slog.LevelVar)
	switch logLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
