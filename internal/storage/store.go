package storage

import (
	"context"
	"fmt"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
)

// ContentType is set on every uploaded object.
const ContentType = "application/vnd.apache.parquet"

// Store lists, downloads and uploads objects across buckets.
type Store interface {
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Download(ctx context.Context, bucket, key, localPath string) error
	Upload(ctx context.Context, bucket, key, localPath string) error
}

// Open builds the backend selected in cfg.Storage.
// GCS clients hold connections; callers should close a Store that
// implements io.Closer.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	sc := cfg.Storage
	var (
		store Store
		err   error
	)
	switch sc.Backend {
	case config.BackendMinIO:
		store, err = NewMinIOClient(ctx, MinIOConfig{
			Endpoint:  sc.Endpoint,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
			Region:    sc.Region,
			UseSSL:    sc.UseSSL,
		}, cfg.SourceBucket, cfg.DestinationBucket)
	case config.BackendS3:
		store, err = NewS3Client(S3Config{
			Region:    sc.Region,
			Endpoint:  sc.Endpoint,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
		})
	case config.BackendGCS:
		store, err = NewGCSClient(ctx)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
