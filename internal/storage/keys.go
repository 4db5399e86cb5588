package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
)

// DefaultPrefix is where search-volume snapshots live in the bucket.
const DefaultPrefix = config.DefaultPrefix

// Extension is the suffix shared by every file the job reads or writes.
const Extension = ".snappy.parquet"

// Kind classifies an object key by its naming scheme.
type Kind int

const (
	// Unrecognized keys live under the prefix but follow none of the schemes.
	Unrecognized Kind = iota
	// Current keys hold data of a period that is not finalized yet: <prefix>YYYYMMDD_<suffix>.
	Current
	// Daily keys hold a finalized day: <prefix>daily_YYYY_MM_DD_<suffix>.
	Daily
	// Monthly keys hold a finalized month: <prefix>monthly_YYYY_MM_<suffix>.
	Monthly
)

func (k Kind) String() string {
	switch k {
	case Current:
		return "current"
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	default:
		return "unrecognized"
	}
}

// Historical reports whether the kind is a finalized batch.
func (k Kind) Historical() bool {
	return k == Daily || k == Monthly
}

// Classifier matches object keys against the naming schemes under one prefix.
type Classifier struct {
	prefix  string
	daily   *regexp.Regexp
	monthly *regexp.Regexp
	current *regexp.Regexp
}

// NewClassifier builds the patterns for prefix. A missing trailing slash is added.
func NewClassifier(prefix string) *Classifier {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	p := "^" + regexp.QuoteMeta(prefix)
	ext := regexp.QuoteMeta(Extension) + "$"
	return &Classifier{
		prefix:  prefix,
		daily:   regexp.MustCompile(p + `daily_\d{4}_\d{2}_\d{2}_.*` + ext),
		monthly: regexp.MustCompile(p + `monthly_\d{4}_\d{2}_.*` + ext),
		current: regexp.MustCompile(p + `\d{8}_.*` + ext),
	}
}

// Prefix returns the normalized prefix, always ending in a slash.
func (c *Classifier) Prefix() string {
	return c.prefix
}

// Classify returns the kind of key. It is a pure function of the string.
func (c *Classifier) Classify(key string) Kind {
	switch {
	case c.current.MatchString(key):
		return Current
	case c.daily.MatchString(key):
		return Daily
	case c.monthly.MatchString(key):
		return Monthly
	default:
		return Unrecognized
	}
}

// Eligible reports whether key may be aggregated: everything under the
// prefix except current-day files.
func (c *Classifier) Eligible(key string) bool {
	return c.Classify(key) != Current
}

// MonthlyKey names a published roll-up object.
type MonthlyKey struct {
	Prefix string
	Year   int
	Month  int
	ID     string // UUID
}

// Key renders <prefix>monthly_YYYY_MM_<id>.snappy.parquet.
func (k MonthlyKey) Key() string {
	prefix := k.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%smonthly_%04d_%02d_%s%s", prefix, k.Year, k.Month, k.ID, Extension)
}

// Basename returns the last path element of an object key.
func Basename(key string) string {
	return path.Base(key)
}
