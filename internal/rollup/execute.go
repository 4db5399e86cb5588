package rollup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/exitcode"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/model"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/storage"
)

// ErrStorageInit marks a failure to construct the storage backend.
var ErrStorageInit = errors.New("initialize storage")

// Opener builds the object storage for a configuration.
type Opener func(ctx context.Context, cfg *config.Config) (storage.Store, error)

// Execute opens storage with open and runs one roll-up. Both entry points
// share it.
func Execute(ctx context.Context, cfg *config.Config, runID model.RunID, open Opener) (*Report, error) {
	store, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageInit, err)
	}
	if c, ok := store.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.WarnContext(ctx, "failed to close storage", "error", err)
			}
		}()
	}

	svc, err := NewService(store, OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	return svc.Run(ctx, runID)
}

// ExitCode maps a run error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitcode.Success
	}
	if errors.Is(err, ErrStorageInit) {
		return exitcode.StorageError
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		return exitcode.ConfigError
	}
	switch stageErr.Stage {
	case StageDecode, StageAggregate:
		return exitcode.DataError
	case StageScratch, StagePartition:
		return exitcode.ScratchError
	default:
		return exitcode.StorageError
	}
}
