// Package table holds search-volume snapshots in memory as flat parquet rows.
//
// Files are decoded against their own schema, so every column survives the
// round trip; only the date column is interpreted, to derive the partition
// key of each row.
package table

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/parquet-go/parquet-go"
)

const readBatchSize = 512

var (
	// ErrNestedColumn is returned for schemas with groups or repeated fields.
	ErrNestedColumn = errors.New("nested or repeated columns are not supported")
	// ErrMissingDateColumn is returned when a file has no column of the configured date name.
	ErrMissingDateColumn = errors.New("date column not found")
)

// Column describes one leaf of a flat schema.
type Column struct {
	Name     string
	Type     parquet.Type
	Optional bool
}

// instant reports whether the column's values decode to time.Time.
func (c Column) instant(dateColumn string) bool {
	return c.Temporal() || c.Name == dateColumn
}

// signature identifies a column for compatibility checks. Columns holding
// instants match regardless of their physical encoding.
func (c Column) signature(dateColumn string) string {
	if c.instant(dateColumn) {
		return fmt.Sprintf("%s instant optional=%t", c.Name, c.Optional)
	}
	return fmt.Sprintf("%s %s optional=%t", c.Name, c.Type, c.Optional)
}

// Row is one observation. Values are indexed like Table.Columns and carry
// no repetition or definition levels.
type Row struct {
	Date   time.Time
	Values []parquet.Value
}

// Table is a set of rows sharing one schema.
type Table struct {
	Source     string
	DateColumn string
	Columns    []Column
	Rows       []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Load reads every row of the parquet file at path. dateColumn names the
// column the partition key is derived from; every row must have a date.
func Load(path, dateColumn string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	columns, err := columnsOf(pf.Schema())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	t := &Table{Source: path, DateColumn: dateColumn, Columns: columns}
	dateIdx := t.ColumnIndex(dateColumn)
	if dateIdx < 0 {
		return nil, fmt.Errorf("%s: %w: %q", path, ErrMissingDateColumn, dateColumn)
	}
	if !columns[dateIdx].Temporal() && columns[dateIdx].Type.Kind() != parquet.ByteArray {
		return nil, fmt.Errorf("%s: date column %q has unsupported type %s", path, dateColumn, columns[dateIdx].Type)
	}

	t.Rows = make([]Row, 0, pf.NumRows())
	buf := make([]parquet.Row, readBatchSize)
	for _, rg := range pf.RowGroups() {
		if err := t.readRowGroup(rg, dateIdx, buf); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return t, nil
}

func (t *Table) readRowGroup(rg parquet.RowGroup, dateIdx int, buf []parquet.Row) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, pr := range buf[:n] {
			row, convErr := t.convert(pr, dateIdx)
			if convErr != nil {
				return fmt.Errorf("row %d: %w", len(t.Rows), convErr)
			}
			t.Rows = append(t.Rows, row)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
	}
}

func (t *Table) convert(pr parquet.Row, dateIdx int) (Row, error) {
	values := make([]parquet.Value, len(t.Columns)) // zero Value is null
	for _, v := range pr {
		col := v.Column()
		if col < 0 || col >= len(values) {
			return Row{}, fmt.Errorf("value for unknown column %d", col)
		}
		// the reader reuses its buffers between batches
		values[col] = v.Clone()
	}

	date, err := t.Columns[dateIdx].Time(values[dateIdx])
	if err != nil {
		return Row{}, fmt.Errorf("column %q: %w", t.Columns[dateIdx].Name, err)
	}
	return Row{Date: date, Values: values}, nil
}

func columnsOf(schema *parquet.Schema) ([]Column, error) {
	paths := schema.Columns()
	columns := make([]Column, len(paths))
	for _, path := range paths {
		leaf, ok := schema.Lookup(path...)
		if !ok {
			return nil, fmt.Errorf("column %v missing from schema", path)
		}
		if len(path) != 1 || leaf.MaxRepetitionLevel > 0 {
			return nil, fmt.Errorf("%w: %v", ErrNestedColumn, path)
		}
		columns[leaf.ColumnIndex] = Column{
			Name:     path[0],
			Type:     leaf.Node.Type(),
			Optional: leaf.MaxDefinitionLevel > 0,
		}
	}
	return columns, nil
}

// SchemaMismatchError is returned when concatenating tables whose columns differ.
type SchemaMismatchError struct {
	Source string
	Want   []string
	Got    []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema of %s does not match: want %v, got %v", e.Source, e.Want, e.Got)
}

func signatures(columns []Column, dateColumn string) []string {
	s := make([]string, len(columns))
	for i, c := range columns {
		s[i] = c.signature(dateColumn)
	}
	slices.Sort(s)
	return s
}

// Concat appends the rows of all tables into one. Column order may differ
// between inputs, but the set of columns must be identical. Instant
// columns stored with different encodings across inputs are re-encoded as
// INT96. Zero tables yield an empty table.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return &Table{}, nil
	}

	first := tables[0]
	want := signatures(first.Columns, first.DateColumn)
	total := 0
	for _, t := range tables {
		if t.DateColumn != first.DateColumn {
			return nil, fmt.Errorf("%s: date column %q, want %q", t.Source, t.DateColumn, first.DateColumn)
		}
		got := signatures(t.Columns, t.DateColumn)
		if !slices.Equal(want, got) {
			return nil, &SchemaMismatchError{Source: t.Source, Want: want, Got: got}
		}
		total += t.Len()
	}

	out := &Table{
		Source:     "concat",
		DateColumn: first.DateColumn,
		Columns:    slices.Clone(first.Columns),
		Rows:       make([]Row, 0, total),
	}
	reencode := mixedEncodings(tables)
	for i := range out.Columns {
		if reencode[i] {
			out.Columns[i].Type = parquet.Int96Type
		}
	}

	for _, t := range tables {
		perm := make([]int, len(first.Columns))
		identity := true
		for i, c := range first.Columns {
			perm[i] = t.ColumnIndex(c.Name)
			identity = identity && perm[i] == i
		}
		if identity && !slices.Contains(reencode, true) {
			out.Rows = append(out.Rows, t.Rows...)
			continue
		}
		for n, r := range t.Rows {
			values := make([]parquet.Value, len(perm))
			for i, j := range perm {
				v := r.Values[j]
				if reencode[i] && !v.IsNull() {
					ts, err := t.Columns[j].Time(v)
					if err != nil {
						return nil, fmt.Errorf("%s: row %d: column %q: %w", t.Source, n, t.Columns[j].Name, err)
					}
					v = parquet.Int96Value(TimeToInt96(ts))
				}
				values[i] = v
			}
			out.Rows = append(out.Rows, Row{Date: r.Date, Values: values})
		}
	}
	return out, nil
}

// mixedEncodings flags, by position in the first table, the instant
// columns whose physical type is not the same in every table.
func mixedEncodings(tables []*Table) []bool {
	first := tables[0]
	mixed := make([]bool, len(first.Columns))
	for i, c := range first.Columns {
		if !c.instant(first.DateColumn) {
			continue
		}
		for _, t := range tables[1:] {
			if t.Columns[t.ColumnIndex(c.Name)].Type.String() != c.Type.String() {
				mixed[i] = true
				break
			}
		}
	}
	return mixed
}
