package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/exitcode"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/model"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/rollup"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/storage"
)

func main() {
	// Configure the global logger; the level is adjusted once config is loaded
	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// Parse CLI flags
	configPath := flag.String("config", "", "Path to a YAML config file (optional)")
	runIDStr := flag.String("run-id", "", "Run identifier (UUIDv7); generated when empty")
	keepScratch := flag.Bool("keep-scratch", false, "Keep the local scratch directory after the run")
	flag.Parse()

	runID, err := resolveRunID(*runIDStr)
	if err != nil {
		slog.Error("invalid run-id", "error", err)
		fmt.Fprintf(os.Stderr, "Usage: run-id must be a UUIDv7\n")
		os.Exit(exitcode.ConfigError)
	}

	// Ensure environment variables are loaded
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load env vars", "error", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(exitcode.ConfigError)
	}
	if *keepScratch {
		cfg.KeepScratch = true
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		slog.Error("invalid log level", "log_level", cfg.LogLevel, "error", err)
		os.Exit(exitcode.ConfigError)
	}

	// Create a cancellable context (for graceful shutdown)
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, runID, storage.Open, os.Stdout); err != nil {
		slog.Error("application error", "run_id", runID, "error", err)
		cancel()
		os.Exit(rollup.ExitCode(err))
	}

	slog.Info("shutdown complete")
}

// resolveRunID validates an explicit run-id or generates a new one.
func resolveRunID(s string) (model.RunID, error) {
	if s == "" {
		return model.NewRunID()
	}
	runID := model.RunID(s)
	if err := runID.Validate(); err != nil {
		return "", err
	}
	return runID, nil
}

// run executes the roll-up and writes the success response to out.
func run(ctx context.Context, cfg *config.Config, runID model.RunID, open rollup.Opener, out io.Writer) error {
	if _, err := rollup.Execute(ctx, cfg, runID, open); err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(model.Success())
}
