package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPrefix is where search-volume snapshots live in the bucket.
const DefaultPrefix = "search_volume/"

// Storage backends understood by storage.Open.
const (
	BackendMinIO = "minio"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
)

// Publish naming schemes.
const (
	NamingRandom  = "random"
	NamingContent = "content"
)

// Config holds application configuration.
type Config struct {
	SourceBucket      string `yaml:"source_bucket"`
	DestinationBucket string `yaml:"destination_bucket"`
	Prefix            string `yaml:"prefix"`

	DateColumn     string `yaml:"date_column"`
	RefoldMonthly  bool   `yaml:"refold_monthly"`
	SkipUnknown    bool   `yaml:"skip_unrecognized"`
	Naming         string `yaml:"naming"`
	MaxRowsPerFile int    `yaml:"max_rows_per_file"`
	ScratchDir     string `yaml:"scratch_dir"`
	KeepScratch    bool   `yaml:"keep_scratch"`
	LogLevel       string `yaml:"log_level"`

	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig selects and configures the object storage backend.
type StorageConfig struct {
	Backend   string `yaml:"backend"`
	Endpoint  string `yaml:"endpoint"` // e.g., "localhost:9000"
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ErrMissingRequiredEnvVar struct {
	Name string
}

func (e *ErrMissingRequiredEnvVar) Error() string {
	return fmt.Sprintf("required environment variable %q is not set", e.Name)
}

// ErrInvalidValue reports a setting that is present but not understood.
type ErrInvalidValue struct {
	Name  string
	Value string
}

func (e *ErrInvalidValue) Error() string {
	return fmt.Sprintf("invalid value %q for %s", e.Value, e.Name)
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Prefix:     DefaultPrefix,
		DateColumn: "date",
		Naming:     NamingRandom,
		LogLevel:   "info",
		Storage: StorageConfig{
			Backend: BackendMinIO,
			Region:  "us-east-1",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and finally environment variables. Returns an error if required
// settings are missing or invalid.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &config); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}

	return &config, nil
}

func applyEnv(c *Config) error {
	setString("SOURCE_BUCKET", &c.SourceBucket)
	setString("DESTINATION_BUCKET", &c.DestinationBucket)
	setString("PREFIX", &c.Prefix)
	setString("DATE_COLUMN", &c.DateColumn)
	setString("PUBLISH_NAMING", &c.Naming)
	setString("SCRATCH_DIR", &c.ScratchDir)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("STORAGE_BACKEND", &c.Storage.Backend)
	setString("STORAGE_ENDPOINT", &c.Storage.Endpoint)
	setString("STORAGE_ACCESS_KEY", &c.Storage.AccessKey)
	setString("STORAGE_SECRET_KEY", &c.Storage.SecretKey)
	setString("STORAGE_REGION", &c.Storage.Region)

	if err := setBool("REFOLD_MONTHLY", &c.RefoldMonthly); err != nil {
		return err
	}
	if err := setBool("SKIP_UNRECOGNIZED", &c.SkipUnknown); err != nil {
		return err
	}
	if err := setBool("KEEP_SCRATCH", &c.KeepScratch); err != nil {
		return err
	}
	if err := setBool("STORAGE_USE_SSL", &c.Storage.UseSSL); err != nil {
		return err
	}
	if v := os.Getenv("MAX_ROWS_PER_FILE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return &ErrInvalidValue{Name: "MAX_ROWS_PER_FILE", Value: v}
		}
		c.MaxRowsPerFile = n
	}
	return nil
}

func (c *Config) validate() error {
	if c.SourceBucket == "" {
		return &ErrMissingRequiredEnvVar{Name: "SOURCE_BUCKET"}
	}
	if c.DestinationBucket == "" {
		return &ErrMissingRequiredEnvVar{Name: "DESTINATION_BUCKET"}
	}
	if c.Prefix == "" || c.Prefix == "/" {
		return &ErrInvalidValue{Name: "prefix", Value: c.Prefix}
	}
	if c.DateColumn == "" {
		return &ErrInvalidValue{Name: "date_column", Value: c.DateColumn}
	}
	if c.MaxRowsPerFile < 0 {
		return &ErrInvalidValue{Name: "max_rows_per_file", Value: strconv.Itoa(c.MaxRowsPerFile)}
	}

	switch c.Naming {
	case NamingRandom, NamingContent:
	default:
		return &ErrInvalidValue{Name: "naming", Value: c.Naming}
	}

	switch c.Storage.Backend {
	case BackendMinIO:
		// MinIO has no ambient credential chain, everything must be explicit.
		if c.Storage.Endpoint == "" {
			return &ErrMissingRequiredEnvVar{Name: "STORAGE_ENDPOINT"}
		}
		if c.Storage.AccessKey == "" {
			return &ErrMissingRequiredEnvVar{Name: "STORAGE_ACCESS_KEY"}
		}
		if c.Storage.SecretKey == "" {
			return &ErrMissingRequiredEnvVar{Name: "STORAGE_SECRET_KEY"}
		}
	case BackendS3, BackendGCS:
	default:
		return &ErrInvalidValue{Name: "storage.backend", Value: c.Storage.Backend}
	}
	return nil
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return &ErrInvalidValue{Name: key, Value: v}
	}
	*dst = b
	return nil
}
