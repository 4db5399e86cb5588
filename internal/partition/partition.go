// Package partition writes a table as one directory per calendar month and
// scans such a layout back for publishing.
//
// Layout: <dir>/year_month=<year>_<month>/part.<n>.parquet
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/table"
)

// DirPrefix precedes the partition key in directory names.
const DirPrefix = "year_month="

// Options configures the writer.
type Options struct {
	// MaxRowsPerFile splits a partition into several files; 0 means one file.
	MaxRowsPerFile int
}

// Partition is one month of output on local disk.
type Partition struct {
	Key   string
	Year  int
	Month int
	Dir   string
	Files []string
	Rows  int
}

// DirName returns the directory name for a partition key.
func DirName(key string) string {
	return DirPrefix + key
}

// ParseDirName extracts year and month from "year_month=<year>_<month>".
func ParseDirName(name string) (year, month int, err error) {
	value, ok := strings.CutPrefix(name, DirPrefix)
	if !ok {
		return 0, 0, fmt.Errorf("partition directory %q: missing %q", name, DirPrefix)
	}
	ys, ms, ok := strings.Cut(value, "_")
	if !ok {
		return 0, 0, fmt.Errorf("partition directory %q: expected <year>_<month>", name)
	}
	year, err = strconv.Atoi(ys)
	if err != nil {
		return 0, 0, fmt.Errorf("partition directory %q: bad year: %w", name, err)
	}
	month, err = strconv.Atoi(ms)
	if err != nil {
		return 0, 0, fmt.Errorf("partition directory %q: bad month: %w", name, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("partition directory %q: month %d out of range", name, month)
	}
	return year, month, nil
}

// Write splits t by partition key and writes each group below dir.
// Temporal columns, the date column included, are stored as INT96.
// Output columns are ordered by name, not by input position.
func Write(dir string, t *table.Table, opts Options) ([]Partition, error) {
	if opts.MaxRowsPerFile < 0 {
		return nil, fmt.Errorf("max rows per file must not be negative, got %d", opts.MaxRowsPerFile)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	groups := t.Groups()
	if len(groups) == 0 {
		return nil, nil
	}

	layout, err := newOutputLayout(t)
	if err != nil {
		return nil, err
	}

	partitions := make([]Partition, 0, len(groups))
	for _, g := range groups {
		p := Partition{
			Key:   g.Key,
			Year:  g.Year,
			Month: g.Month,
			Dir:   filepath.Join(dir, DirName(g.Key)),
			Rows:  len(g.Rows),
		}
		if err := os.MkdirAll(p.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create partition directory: %w", err)
		}

		for i, chunk := range chunks(g.Rows, opts.MaxRowsPerFile) {
			path := filepath.Join(p.Dir, fmt.Sprintf("part.%d.parquet", i))
			if err := layout.writeFile(path, chunk); err != nil {
				return nil, fmt.Errorf("partition %s: %w", g.Key, err)
			}
			p.Files = append(p.Files, path)
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}

func chunks(rows []table.Row, size int) [][]table.Row {
	if size <= 0 || len(rows) <= size {
		return [][]table.Row{rows}
	}
	var out [][]table.Row
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}

// Scan returns every partition directory below dir with its parquet files
// in name order. Entries that are not directories are ignored.
func Scan(dir string) ([]Partition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read partition root: %w", err)
	}

	var partitions []Partition
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		year, month, err := ParseDirName(e.Name())
		if err != nil {
			return nil, err
		}
		p := Partition{
			Key:   e.Name()[len(DirPrefix):],
			Year:  year,
			Month: month,
			Dir:   filepath.Join(dir, e.Name()),
		}
		p.Files, err = filepath.Glob(filepath.Join(p.Dir, "*.parquet"))
		if err != nil {
			return nil, fmt.Errorf("list partition %s: %w", p.Key, err)
		}
		if len(p.Files) == 0 {
			return nil, fmt.Errorf("partition %s has no parquet files", p.Key)
		}
		partitions = append(partitions, p)
	}
	return partitions, nil
}

// outputLayout maps table columns onto the schema written to disk.
type outputLayout struct {
	schema *parquet.Schema
	// source[i] is the table column feeding output leaf i
	source   []int
	int96    []bool
	optional []bool
	columns  []table.Column
}

func newOutputLayout(t *table.Table) (*outputLayout, error) {
	group := parquet.Group{}
	for _, c := range t.Columns {
		var node parquet.Node
		if c.Name == t.DateColumn || c.Temporal() {
			node = parquet.Leaf(parquet.Int96Type)
		} else {
			node = parquet.Leaf(c.Type)
		}
		if c.Optional {
			node = parquet.Optional(node)
		}
		group[c.Name] = node
	}
	schema := parquet.NewSchema("schema", group)

	paths := schema.Columns()
	l := &outputLayout{
		schema:   schema,
		source:   make([]int, len(paths)),
		int96:    make([]bool, len(paths)),
		optional: make([]bool, len(paths)),
		columns:  t.Columns,
	}
	for i, path := range paths {
		src := t.ColumnIndex(path[0])
		if src < 0 {
			return nil, fmt.Errorf("output column %q has no source", path[0])
		}
		c := t.Columns[src]
		l.source[i] = src
		l.int96[i] = c.Name == t.DateColumn || c.Temporal()
		l.optional[i] = c.Optional
	}
	return l, nil
}

func (l *outputLayout) row(r table.Row) (parquet.Row, error) {
	out := make(parquet.Row, len(l.source))
	for i, src := range l.source {
		v := r.Values[src]
		if v.IsNull() {
			if !l.optional[i] {
				return nil, fmt.Errorf("null value in required column %q", l.columns[src].Name)
			}
			out[i] = parquet.Value{}.Level(0, 0, i)
			continue
		}
		if l.int96[i] {
			ts, err := l.columns[src].Time(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", l.columns[src].Name, err)
			}
			v = parquet.Int96Value(table.TimeToInt96(ts))
		}
		def := 0
		if l.optional[i] {
			def = 1
		}
		out[i] = v.Level(0, def, i)
	}
	return out, nil
}

func (l *outputLayout) writeFile(path string, rows []table.Row) error {
	prows := make([]parquet.Row, len(rows))
	for i, r := range rows {
		pr, err := l.row(r)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		prows[i] = pr
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	w := parquet.NewWriter(f, l.schema, parquet.Compression(&parquet.Snappy))
	if _, err := w.WriteRows(prows); err != nil {
		f.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return f.Close()
}
