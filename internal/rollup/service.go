package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/model"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/partition"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/storage"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/table"
)

// ObjectStorage lists, downloads and uploads objects.
type ObjectStorage interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Download(ctx context.Context, bucket, key, localPath string) error
	Upload(ctx context.Context, bucket, key, localPath string) error
}

// Options controls a single run.
type Options struct {
	SourceBucket      string
	DestinationBucket string
	Prefix            string
	DateColumn        string
	RefoldMonthly     bool
	SkipUnknown       bool // drop keys matching no naming scheme instead of aggregating them
	Naming            string
	MaxRowsPerFile    int
	ScratchDir        string // parent of the per-run scratch directory; "" means os.TempDir
	KeepScratch       bool
}

// OptionsFromConfig copies the run settings out of the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SourceBucket:      cfg.SourceBucket,
		DestinationBucket: cfg.DestinationBucket,
		Prefix:            cfg.Prefix,
		DateColumn:        cfg.DateColumn,
		RefoldMonthly:     cfg.RefoldMonthly,
		SkipUnknown:       cfg.SkipUnknown,
		Naming:            cfg.Naming,
		MaxRowsPerFile:    cfg.MaxRowsPerFile,
		ScratchDir:        cfg.ScratchDir,
		KeepScratch:       cfg.KeepScratch,
	}
}

// Published records one uploaded roll-up file.
type Published struct {
	Partition string
	Key       string
	File      string // local path, gone after the run unless scratch is kept
}

// Report summarizes a finished run.
type Report struct {
	RunID      model.RunID
	Listed     int
	Selected   []string
	Rows       int
	Partitions int
	Published  []Published
}

// Service orchestrates the roll-up: list, classify, fetch, aggregate,
// partition, publish. Every step runs sequentially and the first error
// aborts the run.
type Service struct {
	objectStorage ObjectStorage
	opts          Options
	classifier    *storage.Classifier
	newID         IDFunc
}

func NewService(objectStorage ObjectStorage, opts Options) (*Service, error) {
	if opts.SourceBucket == "" || opts.DestinationBucket == "" {
		return nil, fmt.Errorf("source and destination bucket are required")
	}
	if opts.Prefix == "" {
		opts.Prefix = storage.DefaultPrefix
	}
	if opts.DateColumn == "" {
		opts.DateColumn = "date"
	}
	newID, err := idFuncFor(opts.Naming)
	if err != nil {
		return nil, err
	}
	return &Service{
		objectStorage: objectStorage,
		opts:          opts,
		classifier:    storage.NewClassifier(opts.Prefix),
		newID:         newID,
	}, nil
}

// Run executes one roll-up. A run with nothing to aggregate succeeds
// without uploading anything.
func (s *Service) Run(ctx context.Context, runID model.RunID) (*Report, error) {
	if err := runID.Validate(); err != nil {
		return nil, err
	}
	report := &Report{RunID: runID}

	scratch, err := os.MkdirTemp(s.opts.ScratchDir, "rollup-"+runID.String()+"-")
	if err != nil {
		return nil, &StageError{Stage: StageScratch, Err: err}
	}
	if s.opts.KeepScratch {
		slog.InfoContext(ctx, "keeping scratch directory", "run_id", runID, "path", scratch)
	} else {
		defer func() {
			if err := os.RemoveAll(scratch); err != nil {
				slog.WarnContext(ctx, "failed to remove scratch directory", "run_id", runID, "path", scratch, "error", err)
			}
		}()
	}

	slog.InfoContext(ctx, "rollup started", "run_id", runID, "source_bucket", s.opts.SourceBucket,
		"destination_bucket", s.opts.DestinationBucket, "prefix", s.classifier.Prefix())

	keys, err := s.objectStorage.List(ctx, s.opts.SourceBucket, s.classifier.Prefix())
	if err != nil {
		return nil, &StageError{Stage: StageList, Err: err}
	}
	report.Listed = len(keys)
	report.Selected = s.selectKeys(ctx, runID, keys)
	slog.InfoContext(ctx, "found historical files", "run_id", runID, "listed", len(keys), "selected", len(report.Selected))

	if len(report.Selected) == 0 {
		slog.InfoContext(ctx, "nothing to aggregate", "run_id", runID)
		return report, nil
	}

	tables, err := s.fetch(ctx, runID, report.Selected, filepath.Join(scratch, "fetch"))
	if err != nil {
		return nil, err
	}

	aggregated, err := table.Concat(tables...)
	if err != nil {
		return nil, &StageError{Stage: StageAggregate, Err: err}
	}
	report.Rows = aggregated.Len()
	slog.InfoContext(ctx, "aggregated files", "run_id", runID, "files", len(tables), "rows", aggregated.Len())

	partitionDir := filepath.Join(scratch, "partitioned")
	written, err := partition.Write(partitionDir, aggregated, partition.Options{MaxRowsPerFile: s.opts.MaxRowsPerFile})
	if err != nil {
		return nil, &StageError{Stage: StagePartition, Err: err}
	}
	report.Partitions = len(written)
	slog.InfoContext(ctx, "partitioned rows", "run_id", runID, "partitions", len(written))

	if err := s.publish(ctx, runID, partitionDir, report); err != nil {
		return report, err
	}

	slog.InfoContext(ctx, "rollup complete", "run_id", runID, "rows", report.Rows, "published", len(report.Published))
	return report, nil
}

// selectKeys keeps every eligible key, minus monthly files unless
// re-folding is on and unrecognized keys when they are to be skipped.
func (s *Service) selectKeys(ctx context.Context, runID model.RunID, keys []string) []string {
	var selected []string
	for _, key := range keys {
		kind := s.classifier.Classify(key)
		switch {
		case !s.classifier.Eligible(key):
			slog.DebugContext(ctx, "skipping current object", "run_id", runID, "key", key)
			continue
		case kind == storage.Monthly && !s.opts.RefoldMonthly:
			slog.DebugContext(ctx, "skipping monthly object", "run_id", runID, "key", key)
			continue
		case kind == storage.Unrecognized && s.opts.SkipUnknown:
			slog.WarnContext(ctx, "skipping unrecognized object", "run_id", runID, "key", key)
			continue
		case kind == storage.Unrecognized:
			slog.WarnContext(ctx, "selected unrecognized object", "run_id", runID, "key", key)
		default:
			slog.DebugContext(ctx, "selected object", "run_id", runID, "key", key, "kind", kind)
		}
		selected = append(selected, key)
	}
	return selected
}

func (s *Service) fetch(ctx context.Context, runID model.RunID, keys []string, dir string) ([]*table.Table, error) {
	tables := make([]*table.Table, 0, len(keys))
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: StageFetch, Key: key, Err: err}
		}

		local := filepath.Join(dir, fmt.Sprintf("%04d_%s", i, storage.Basename(key)))
		if err := s.objectStorage.Download(ctx, s.opts.SourceBucket, key, local); err != nil {
			return nil, &StageError{Stage: StageFetch, Key: key, Err: err}
		}

		t, err := table.Load(local, s.opts.DateColumn)
		if err != nil {
			return nil, &StageError{Stage: StageDecode, Key: key, Err: err}
		}
		slog.DebugContext(ctx, "fetched object", "run_id", runID, "key", key, "rows", t.Len())
		tables = append(tables, t)
	}
	return tables, nil
}

// publish uploads every file of every partition found below dir.
func (s *Service) publish(ctx context.Context, runID model.RunID, dir string, report *Report) error {
	partitions, err := partition.Scan(dir)
	if err != nil {
		return &StageError{Stage: StagePartition, Err: err}
	}

	for _, p := range partitions {
		for _, file := range p.Files {
			if err := ctx.Err(); err != nil {
				return &StageError{Stage: StagePublish, Err: err}
			}

			id, err := s.newID(file)
			if err != nil {
				return &StageError{Stage: StagePublish, Err: fmt.Errorf("generate id: %w", err)}
			}
			key := storage.MonthlyKey{Prefix: s.classifier.Prefix(), Year: p.Year, Month: p.Month, ID: id}.Key()

			if err := s.objectStorage.Upload(ctx, s.opts.DestinationBucket, key, file); err != nil {
				return &StageError{Stage: StagePublish, Key: key, Err: err}
			}
			slog.InfoContext(ctx, "published partition", "run_id", runID, "partition", p.Key, "key", key)
			report.Published = append(report.Published, Published{Partition: p.Key, Key: key, File: file})
		}
	}
	return nil
}
