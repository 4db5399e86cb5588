package table

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/deprecated"
	xtypes "github.com/xitongsys/parquet-go/types"
)

type timeUnit int

const (
	notTemporal timeUnit = iota
	unitInt96
	unitMillis
	unitMicros
	unitNanos
	unitDays
)

// textLayouts are tried in order for dates stored as strings.
var textLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func unitOf(typ parquet.Type) timeUnit {
	switch typ.Kind() {
	case parquet.Int96:
		return unitInt96
	case parquet.Int64:
		if lt := typ.LogicalType(); lt != nil && lt.Timestamp != nil {
			switch {
			case lt.Timestamp.Unit.Millis != nil:
				return unitMillis
			case lt.Timestamp.Unit.Micros != nil:
				return unitMicros
			case lt.Timestamp.Unit.Nanos != nil:
				return unitNanos
			}
		}
		if ct := typ.ConvertedType(); ct != nil {
			switch *ct {
			case deprecated.TimestampMillis:
				return unitMillis
			case deprecated.TimestampMicros:
				return unitMicros
			}
		}
	case parquet.Int32:
		if lt := typ.LogicalType(); lt != nil && lt.Date != nil {
			return unitDays
		}
		if ct := typ.ConvertedType(); ct != nil && *ct == deprecated.Date {
			return unitDays
		}
	}
	return notTemporal
}

// Temporal reports whether the column stores instants or dates.
func (c Column) Temporal() bool {
	return unitOf(c.Type) != notTemporal
}

// Time decodes v as an instant in UTC. Strings are accepted as ISO dates
// or timestamps. Null values are an error.
func (c Column) Time(v parquet.Value) (time.Time, error) {
	if v.IsNull() {
		return time.Time{}, fmt.Errorf("null date")
	}
	switch unitOf(c.Type) {
	case unitInt96:
		return Int96ToTime(v.Int96()), nil
	case unitMillis:
		return time.UnixMilli(v.Int64()).UTC(), nil
	case unitMicros:
		return time.UnixMicro(v.Int64()).UTC(), nil
	case unitNanos:
		return time.Unix(0, v.Int64()).UTC(), nil
	case unitDays:
		return time.Unix(int64(v.Int32())*86400, 0).UTC(), nil
	}
	if c.Type.Kind() == parquet.ByteArray {
		s := string(v.ByteArray())
		for _, layout := range textLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	return time.Time{}, fmt.Errorf("column type %s is not a date", c.Type)
}

const day = 24 * time.Hour

// Int96ToTime decodes the legacy 96-bit timestamp: nanoseconds of the day
// in the first eight bytes, Julian day in the last four, little endian.
// The helper resolves the day; nanoseconds are added back at full precision.
func Int96ToTime(v deprecated.Int96) time.Time {
	var b [12]byte
	binary.LittleEndian.PutUint32(b[0:4], v[0])
	binary.LittleEndian.PutUint32(b[4:8], v[1])
	binary.LittleEndian.PutUint32(b[8:12], v[2])
	nanos := binary.LittleEndian.Uint64(b[0:8])
	midnight := xtypes.INT96ToTime(string(b[:])).UTC().Truncate(day)
	return midnight.Add(time.Duration(nanos))
}

// TimeToInt96 is the inverse of Int96ToTime. Nanoseconds survive.
func TimeToInt96(t time.Time) deprecated.Int96 {
	t = t.UTC()
	b := []byte(xtypes.TimeToINT96(t))
	binary.LittleEndian.PutUint64(b[0:8], uint64(t.Sub(t.Truncate(day))))
	return deprecated.Int96{
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint32(b[4:8]),
		binary.LittleEndian.Uint32(b[8:12]),
	}
}

// PartitionKey groups a row by calendar month: "<year>_<month>", month not padded.
func PartitionKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d_%d", t.Year(), int(t.Month()))
}
