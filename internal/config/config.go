// Package config provides unified configuration for the eventstar binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eventstar/eventstar/internal/snapshot"
	"github.com/eventstar/eventstar/internal/source"
	"github.com/eventstar/eventstar/internal/storage"
	"github.com/eventstar/eventstar/internal/warehouse"
)

// Config holds the configuration shared by the CLI and the mock API.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Source configures the events API client
	Source SourceConfig `json:"source" yaml:"source"`

	// Storage configures where stage snapshots are kept
	Storage StorageConfig `json:"storage" yaml:"storage"`

	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Warehouse configures the relational sink
	Warehouse WarehouseConfig `json:"warehouse" yaml:"warehouse"`

	MockAPI MockAPIConfig `json:"mockapi" yaml:"mockapi"`

	Report ReportConfig `json:"report" yaml:"report"`

	Log LogConfig `json:"log" yaml:"log"`
}

// SourceConfig holds events API client configuration.
type SourceConfig struct {
	// BaseURL is the events API root, e.g. http://127.0.0.1:5000
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Timeout bounds a single request
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retries after a failed fetch
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing (MinIO, LocalStack)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// SnapshotConfig holds stage snapshot configuration.
type SnapshotConfig struct {
	// Concurrency is the number of parallel snapshot downloads
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// CacheDir keeps downloaded snapshots between loads
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`
}

// WarehouseConfig holds relational sink configuration.
type WarehouseConfig struct {
	// Driver is sqlite3 or postgres
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the data source name; for sqlite3 a file path
	DSN string `json:"dsn" yaml:"dsn"`
}

// MockAPIConfig holds mock events API configuration.
type MockAPIConfig struct {
	Addr string `json:"addr" yaml:"addr"`

	// Database is the SQLite file holding raw_events
	Database string `json:"database" yaml:"database"`

	// SeedFile is the JSON dump loaded by initdb
	SeedFile string `json:"seed_file" yaml:"seed_file"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// ReportConfig holds report output configuration.
type ReportConfig struct {
	Dir  string `json:"dir" yaml:"dir"`
	Name string `json:"name" yaml:"name"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Development switches to the human-readable development logger
	Development bool `json:"development" yaml:"development"`

	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/eventstar",
		Source: SourceConfig{
			BaseURL:    "http://127.0.0.1:5000",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		Storage: StorageConfig{
			Type: storage.TypeLocal,
		},
		Snapshot: SnapshotConfig{
			Concurrency: 4,
		},
		Warehouse: WarehouseConfig{
			Driver: warehouse.DriverSQLite,
		},
		MockAPI: MockAPIConfig{
			Addr:         "127.0.0.1:5000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Report: ReportConfig{
			Name: "eventstar_report",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/eventstar"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "snapshots")
	}
	if c.Snapshot.CacheDir == "" {
		c.Snapshot.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.Warehouse.Driver == warehouse.DriverSQLite && c.Warehouse.DSN == "" {
		c.Warehouse.DSN = filepath.Join(c.DataDir, "analytics.db")
	}
	if c.MockAPI.Database == "" {
		c.MockAPI.Database = filepath.Join(c.DataDir, "api.db")
	}
	if c.Report.Dir == "" {
		c.Report.Dir = filepath.Join(c.DataDir, "reports")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != storage.TypeLocal && c.Storage.Type != storage.TypeS3 {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == storage.TypeS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	switch c.Warehouse.Driver {
	case warehouse.DriverSQLite, warehouse.DriverPostgres:
	default:
		return fmt.Errorf("invalid warehouse driver: %s (must be sqlite3 or postgres)", c.Warehouse.Driver)
	}
	if c.Warehouse.DSN == "" {
		return fmt.Errorf("warehouse.dsn is required")
	}

	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source.max_retries must not be negative, got %d", c.Source.MaxRetries)
	}
	if c.Snapshot.Concurrency < 1 || c.Snapshot.Concurrency > 64 {
		return fmt.Errorf("snapshot.concurrency must be between 1 and 64, got %d", c.Snapshot.Concurrency)
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	return nil
}

// SourceOptions returns the events API client configuration.
func (c *Config) SourceOptions() source.Config {
	return source.Config{
		BaseURL:    c.Source.BaseURL,
		Timeout:    c.Source.Timeout,
		MaxRetries: c.Source.MaxRetries,
	}
}

// StorageOptions returns the object storage configuration.
func (c *Config) StorageOptions() storage.Options {
	s3cfg := storage.DefaultS3Config()
	s3cfg.Region = c.Storage.S3.Region
	s3cfg.Endpoint = c.Storage.S3.Endpoint
	s3cfg.UsePathStyle = c.Storage.S3.UsePathStyle
	return storage.Options{
		Type:   c.Storage.Type,
		Path:   c.Storage.Path,
		Bucket: c.Storage.S3.Bucket,
		S3:     s3cfg,
	}
}

// SnapshotOptions returns the snapshot store configuration.
func (c *Config) SnapshotOptions() snapshot.StoreConfig {
	return snapshot.StoreConfig{
		Concurrency: c.Snapshot.Concurrency,
		CacheDir:    c.Snapshot.CacheDir,
	}
}

// Load reads the optional config file, applies environment overrides and
// resolves defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	cfg.Resolve()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the EVENTSTAR_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EVENTSTAR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Source configuration
	if v := os.Getenv("EVENTSTAR_SOURCE_BASE_URL"); v != "" {
		cfg.Source.BaseURL = v
	}
	if v := os.Getenv("EVENTSTAR_SOURCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.Timeout = d
		}
	}
	if v := os.Getenv("EVENTSTAR_SOURCE_MAX_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Source.MaxRetries)
	}

	// Storage configuration
	if v := os.Getenv("EVENTSTAR_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("EVENTSTAR_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("EVENTSTAR_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("EVENTSTAR_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("EVENTSTAR_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("EVENTSTAR_S3_USE_PATH_STYLE"); v != "" {
		cfg.Storage.S3.UsePathStyle = v == "true" || v == "1"
	}

	// Snapshot configuration
	if v := os.Getenv("EVENTSTAR_SNAPSHOT_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Snapshot.Concurrency)
	}
	if v := os.Getenv("EVENTSTAR_SNAPSHOT_CACHE_DIR"); v != "" {
		cfg.Snapshot.CacheDir = v
	}

	// Warehouse configuration
	if v := os.Getenv("EVENTSTAR_WAREHOUSE_DRIVER"); v != "" {
		cfg.Warehouse.Driver = v
	}
	if v := os.Getenv("EVENTSTAR_WAREHOUSE_DSN"); v != "" {
		cfg.Warehouse.DSN = v
	}

	// Mock API configuration
	if v := os.Getenv("EVENTSTAR_MOCKAPI_ADDR"); v != "" {
		cfg.MockAPI.Addr = v
	}
	if v := os.Getenv("EVENTSTAR_MOCKAPI_DATABASE"); v != "" {
		cfg.MockAPI.Database = v
	}
	if v := os.Getenv("EVENTSTAR_MOCKAPI_SEED_FILE"); v != "" {
		cfg.MockAPI.SeedFile = v
	}

	if v := os.Getenv("EVENTSTAR_REPORT_DIR"); v != "" {
		cfg.Report.Dir = v
	}

	// Logging configuration
	if v := os.Getenv("EVENTSTAR_LOG_DEVELOPMENT"); v != "" {
		cfg.Log.Development = v == "true" || v == "1"
	}
	if v := os.Getenv("EVENTSTAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Snapshot.CacheDir,
		c.Report.Dir,
	}
	if c.Storage.Type == storage.TypeLocal {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
