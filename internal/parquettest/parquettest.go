// Package parquettest writes parquet fixtures for tests.
package parquettest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
)

// SearchVolumeRow mirrors the daily snapshots produced upstream.
type SearchVolumeRow struct {
	Date    time.Time `parquet:"date,timestamp(millisecond)"`
	Keyword string    `parquet:"keyword"`
	Country string    `parquet:"country"`
	Volume  int64     `parquet:"volume"`
	Note    *string   `parquet:"note,optional"`
}

// TextDateRow stores its date as an ISO string.
type TextDateRow struct {
	Date    string `parquet:"date"`
	Keyword string `parquet:"keyword"`
	Volume  int64  `parquet:"volume"`
}

// DayRow stores its date as days since the epoch.
type DayRow struct {
	Date    int32  `parquet:"date,date"`
	Keyword string `parquet:"keyword"`
	Volume  int64  `parquet:"volume"`
}

// Write creates a snappy-compressed parquet file at path.
func Write[T any](t testing.TB, path string, rows []T) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create directory: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
}

// Month returns n rows spread over the days of the given month.
func Month(year int, month time.Month, n int, keyword string) []SearchVolumeRow {
	rows := make([]SearchVolumeRow, n)
	for i := range rows {
		day := i%28 + 1
		rows[i] = SearchVolumeRow{
			Date:    time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
			Keyword: keyword,
			Country: "DE",
			Volume:  int64(100 + i),
		}
		if i%2 == 0 {
			note := fmt.Sprintf("sample %d", i)
			rows[i].Note = &note
		}
	}
	return rows
}
