package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
)

// fakeS3 serves the handful of S3 calls the client makes, path-style.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte // "bucket/key"
	pageSize int
	lists    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		f.lists++
		f.list(w, path, r.URL.Query().Get("prefix"), r.URL.Query().Get("continuation-token"))
	case r.Method == http.MethodGet:
		data, ok := f.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(data)-1, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data)
	case r.Method == http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.objects[path] = data
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) list(w http.ResponseWriter, bucket, prefix, token string) {
	var keys []string
	for k := range f.objects {
		b, key, _ := strings.Cut(k, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	start := 0
	if token != "" {
		fmt.Sscanf(token, "page-%d", &start)
	}
	end := min(start+f.pageSize, len(keys))

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
	fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount>", bucket, prefix, end-start)
	for _, k := range keys[start:end] {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>1</Size></Contents>", k)
	}
	if end < len(keys) {
		fmt.Fprintf(&b, "<IsTruncated>true</IsTruncated><NextContinuationToken>page-%d</NextContinuationToken>", end)
	} else {
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	b.WriteString("</ListBucketResult>")

	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, b.String())
}

func newTestS3Client(t *testing.T, fake *fakeS3) *S3Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewS3Client(S3Config{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	if err != nil {
		t.Fatalf("NewS3Client() error = %v", err)
	}
	return client
}

func TestS3Client_ListFollowsPagination(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, pageSize: 2}
	for i := 0; i < 5; i++ {
		fake.objects[fmt.Sprintf("raw/search_volume/daily_2022_01_%02d_x.snappy.parquet", i+1)] = []byte("x")
	}
	fake.objects["raw/other/file.parquet"] = []byte("x")

	keys, err := newTestS3Client(t, fake).List(context.Background(), "raw", "search_volume/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 keys across pages, got %v", keys)
	}
	if fake.lists != 3 {
		t.Errorf("expected 3 list requests, got %d", fake.lists)
	}
}

func TestS3Client_UploadDownload(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, pageSize: 1000}
	client := newTestS3Client(t, fake)
	ctx := context.Background()

	dir := t.TempDir()
	local := filepath.Join(dir, "part.0.parquet")
	if err := os.WriteFile(local, []byte("parquet bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	key := "search_volume/monthly_2022_01_x.snappy.parquet"
	if err := client.Upload(ctx, "monthly", key, local); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if got := string(fake.objects["monthly/"+key]); got != "parquet bytes" {
		t.Fatalf("stored object = %q", got)
	}

	downloaded := filepath.Join(dir, "fetch", "copy.parquet")
	if err := client.Download(ctx, "monthly", key, downloaded); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, err := os.ReadFile(downloaded)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "parquet bytes" {
		t.Errorf("downloaded %q", data)
	}

	if err := client.Download(ctx, "monthly", "search_volume/missing", filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing object")
	}
}
