// Command rollup-lambda runs the monthly roll-up as an AWS Lambda function.
// The invocation event is ignored; configuration comes from the environment.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/model"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/rollup"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/storage"
)

func main() {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	h := handler{configPath: os.Getenv("ROLLUP_CONFIG"), open: storage.Open, level: level}
	lambda.Start(h.Handle)
}

type handler struct {
	configPath string
	open       rollup.Opener
	level      *slog.LevelVar
}

// Handle runs one roll-up per invocation, reloading configuration each time.
func (h handler) Handle(ctx context.Context, _ json.RawMessage) (model.Response, error) {
	cfg, err := config.Load(h.configPath)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		return model.Response{}, err
	}
	if h.level != nil {
		if err := h.level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			slog.WarnContext(ctx, "invalid log level, keeping current", "log_level", cfg.LogLevel)
		}
	}

	runID, err := model.NewRunID()
	if err != nil {
		return model.Response{}, err
	}

	if _, err := rollup.Execute(ctx, cfg, runID, h.open); err != nil {
		slog.ErrorContext(ctx, "application error", "run_id", runID, "error", err)
		return model.Response{}, err
	}
	return model.Success(), nil
}
