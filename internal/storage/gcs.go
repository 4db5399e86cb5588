package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSClient implements Store using Google Cloud Storage. Credentials come
// from Application Default Credentials.
type GCSClient struct {
	client *gcs.Client
}

// NewGCSClient creates the underlying storage client.
func NewGCSClient(ctx context.Context) (*GCSClient, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSClient{client: client}, nil
}

// List drains the object iterator under prefix.
func (g *GCSClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	it := g.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gcs objects: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Download writes the object to localPath.
func (g *GCSClient) Download(ctx context.Context, bucket, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	r, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open gcs object: %w", err)
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to download from gcs: %w", err)
	}
	return f.Close()
}

// Upload stores the file at localPath under key.
func (g *GCSClient) Upload(ctx context.Context, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer f.Close()

	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = ContentType
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gcs upload: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (g *GCSClient) Close() error {
	return g.client.Close()
}
