package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/model"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/storage"
)

type noopStorage struct{}

func (noopStorage) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	return nil, nil
}

func (noopStorage) Download(ctx context.Context, bucket, key, localPath string) error {
	return errors.New("unexpected download")
}

func (noopStorage) Upload(ctx context.Context, bucket, key, localPath string) error {
	return errors.New("unexpected upload")
}

func setEnv(t *testing.T) {
	t.Setenv("SOURCE_BUCKET", "trends-raw")
	t.Setenv("DESTINATION_BUCKET", "trends-monthly")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("SCRATCH_DIR", t.TempDir())
}

func TestHandle_Success(t *testing.T) {
	setEnv(t)
	h := handler{open: func(ctx context.Context, cfg *config.Config) (storage.Store, error) { return noopStorage{}, nil }}

	resp, err := h.Handle(context.Background(), json.RawMessage(`{"source":"aws.events"}`))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp != model.Success() {
		t.Errorf("Handle() = %+v, want %+v", resp, model.Success())
	}
}

func TestHandle_ConfigError(t *testing.T) {
	t.Setenv("SOURCE_BUCKET", "")
	t.Setenv("DESTINATION_BUCKET", "")
	h := handler{open: func(ctx context.Context, cfg *config.Config) (storage.Store, error) {
		t.Fatal("storage must not be opened without config")
		return nil, nil
	}}

	if _, err := h.Handle(context.Background(), nil); err == nil {
		t.Fatal("expected config error")
	}
}

func TestHandle_StorageError(t *testing.T) {
	setEnv(t)
	h := handler{open: func(ctx context.Context, cfg *config.Config) (storage.Store, error) {
		return nil, errors.New("no credentials")
	}}

	if _, err := h.Handle(context.Background(), nil); err == nil {
		t.Fatal("expected storage error")
	}
}
