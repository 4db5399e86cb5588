package partition

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/parquettest"
	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/table"
)

func loadFixture(t *testing.T, rows ...[]parquettest.SearchVolumeRow) *table.Table {
	t.Helper()
	dir := t.TempDir()
	var tables []*table.Table
	for i, r := range rows {
		path := filepath.Join(dir, "in", string(rune('a'+i))+".parquet")
		parquettest.Write(t, path, r)
		tbl, err := table.Load(path, "date")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		tables = append(tables, tbl)
	}
	out, err := table.Concat(tables...)
	if err != nil {
		t.Fatalf("Concat() error = %v", err)
	}
	return out
}

func TestParseDirName(t *testing.T) {
	tests := []struct {
		name      string
		dir       string
		wantYear  int
		wantMonth int
		wantErr   bool
	}{
		{name: "single digit month", dir: "year_month=2022_1", wantYear: 2022, wantMonth: 1},
		{name: "two digit month", dir: "year_month=2021_12", wantYear: 2021, wantMonth: 12},
		{name: "missing prefix", dir: "2022_1", wantErr: true},
		{name: "missing separator", dir: "year_month=20221", wantErr: true},
		{name: "month out of range", dir: "year_month=2022_13", wantErr: true},
		{name: "not a number", dir: "year_month=abcd_1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, month, err := ParseDirName(tt.dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDirName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (year != tt.wantYear || month != tt.wantMonth) {
				t.Errorf("ParseDirName() = %d, %d, want %d, %d", year, month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestWrite_OnePartitionPerMonth(t *testing.T) {
	tbl := loadFixture(t,
		parquettest.Month(2022, time.January, 10, "bmw"),
		parquettest.Month(2022, time.February, 4, "mini"),
	)

	dir := filepath.Join(t.TempDir(), "partitioned")
	parts, err := Write(dir, tbl, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}

	want := map[string]int{"2022_1": 10, "2022_2": 4}
	for _, p := range parts {
		if len(p.Files) != 1 {
			t.Fatalf("partition %s: expected one file, got %v", p.Key, p.Files)
		}
		if filepath.Base(p.Dir) != "year_month="+p.Key {
			t.Errorf("unexpected directory %s", p.Dir)
		}

		out, err := table.Load(p.Files[0], "date")
		if err != nil {
			t.Fatalf("Load(%s) error = %v", p.Files[0], err)
		}
		if out.Len() != want[p.Key] {
			t.Errorf("partition %s has %d rows, want %d", p.Key, out.Len(), want[p.Key])
		}
		for _, r := range out.Rows {
			if table.PartitionKey(r.Date) != p.Key {
				t.Errorf("row dated %v written to partition %s", r.Date, p.Key)
			}
		}
		if out.ColumnIndex("year_month") >= 0 {
			t.Error("partition column must only live in the directory name")
		}
	}
}

func TestWrite_DateStoredAsInt96(t *testing.T) {
	tbl := loadFixture(t, parquettest.Month(2022, time.March, 3, "bmw"))

	parts, err := Write(t.TempDir(), tbl, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out, err := table.Load(parts[0].Files[0], "date")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	date := out.Columns[out.ColumnIndex("date")]
	if date.Type.Kind() != parquet.Int96 {
		t.Fatalf("date column kind = %v, want INT96", date.Type.Kind())
	}
	for i, r := range out.Rows {
		want := time.Date(2022, time.March, i%28+1, 0, 0, 0, 0, time.UTC)
		if !r.Date.Equal(want) {
			t.Errorf("row %d date = %v, want %v", i, r.Date, want)
		}
	}

	note := out.ColumnIndex("note")
	if !out.Columns[note].Optional {
		t.Error("optional column lost its repetition")
	}
	if !out.Rows[1].Values[note].IsNull() {
		t.Error("null note was not preserved")
	}
	volume := out.ColumnIndex("volume")
	if got := out.Rows[2].Values[volume].Int64(); got != 102 {
		t.Errorf("volume = %d, want 102", got)
	}
}

func TestWrite_SplitsLargePartitions(t *testing.T) {
	tbl := loadFixture(t, parquettest.Month(2022, time.April, 25, "bmw"))

	dir := t.TempDir()
	parts, err := Write(dir, tbl, Options{MaxRowsPerFile: 10})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(parts[0].Files) != 3 {
		t.Fatalf("expected 3 files, got %v", parts[0].Files)
	}

	scanned, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	total := 0
	for _, f := range scanned[0].Files {
		out, err := table.Load(f, "date")
		if err != nil {
			t.Fatalf("Load(%s) error = %v", f, err)
		}
		total += out.Len()
	}
	if total != 25 {
		t.Fatalf("files hold %d rows, want 25", total)
	}
}

func TestWrite_EmptyTable(t *testing.T) {
	empty, err := table.Concat()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	parts, err := Write(dir, empty, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if len(parts) != 0 {
		t.Fatalf("expected no partitions, got %d", len(parts))
	}
	scanned, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(scanned) != 0 {
		t.Fatalf("expected no partitions on disk, got %d", len(scanned))
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"year_month=2022_1/part.0.parquet", "year_month=2022_10/part.0.parquet", "year_month=2022_10/part.1.parquet"} {
		path := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// stray files next to the partitions are ignored
	if err := os.WriteFile(filepath.Join(dir, "_SUCCESS"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	parts, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}
	byKey := map[string]Partition{}
	for _, p := range parts {
		byKey[p.Key] = p
	}
	if p := byKey["2022_10"]; p.Month != 10 || len(p.Files) != 2 {
		t.Errorf("unexpected partition %+v", p)
	}
	if p := byKey["2022_1"]; p.Year != 2022 || p.Month != 1 || len(p.Files) != 1 {
		t.Errorf("unexpected partition %+v", p)
	}

	if err := os.MkdirAll(filepath.Join(dir, "scratch"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Scan(dir); err == nil {
		t.Fatal("expected error for malformed partition directory")
	}
}

func TestWrite_ColumnsSortedByName(t *testing.T) {
	tbl := loadFixture(t, parquettest.Month(2022, time.May, 2, "bmw"))

	parts, err := Write(t.TempDir(), tbl, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out, err := table.Load(parts[0].Files[0], "date")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"country", "date", "keyword", "note", "volume"}
	if len(out.Columns) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(out.Columns))
	}
	for i, c := range out.Columns {
		if c.Name != want[i] {
			t.Errorf("column %d = %s, want %s", i, c.Name, want[i])
		}
	}
}
