// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvCacheDir     = "KINO_CACHE_DIR"
	EnvCacheBackend = "KINO_CACHE_BACKEND"
	EnvDatabaseDSN  = "KINO_DATABASE_DSN"
	EnvOPAPBaseURL  = "KINO_OPAP_BASE_URL"
	EnvLogLevel     = "KINO_LOG_LEVEL"
	EnvEnvironment  = "KINO_ENVIRONMENT"
	EnvFetchWorkers = "KINO_WORKERS_FETCH"
)

// OPAPConfig configures the remote draw service client.
type OPAPConfig struct {
	BaseURL           string        `yaml:"baseURL"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"maxRetries"`
	MaxElapsed        time.Duration `yaml:"maxElapsed"`
}

func (c *OPAPConfig) applyDefaults() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://api.opap.gr"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 5
	}
	if c.Burst <= 0 {
		c.Burst = 2
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 4
	}
	if c.MaxElapsed <= 0 {
		c.MaxElapsed = 30 * time.Second
	}
}

func (c OPAPConfig) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("baseURL required")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requestsPerSecond must be >0")
	}
	if c.Burst <= 0 {
		return fmt.Errorf("burst must be >0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must be >=0")
	}
	return nil
}

// CacheConfig selects and locates the draw cache.
type CacheConfig struct {
	Backend   CacheBackend `yaml:"backend"`
	Directory string       `yaml:"directory"`
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour for
// the postgres cache backend.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/kino"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	return nil
}

// WorkersConfig sizes the two concurrency stages independently: I/O-bound page
// resolution and CPU-bound draw evaluation.
type WorkersConfig struct {
	Fetch    int `yaml:"fetch"`
	Evaluate int `yaml:"evaluate"`
}

// PayTableConfig points at an alternative pay-table document.
type PayTableConfig struct {
	Path string `yaml:"path"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint   string        `yaml:"otlpEndpoint"`
	ServiceName    string        `yaml:"serviceName"`
	OTLPInsecure   bool          `yaml:"otlpInsecure"`
	EnableMetrics  bool          `yaml:"enableMetrics"`
	MetricInterval time.Duration `yaml:"metricInterval"`
}

// APIServerConfig configures the HTTP API served by kino -serve.
type APIServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

func (c *APIServerConfig) applyDefaults() {
	c.Addr = strings.TrimSpace(c.Addr)
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level  string    `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// AppConfig is the unified KINO configuration sourced from YAML and the environment.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	OPAP        OPAPConfig      `yaml:"opap"`
	Cache       CacheConfig     `yaml:"cache"`
	Database    DatabaseConfig  `yaml:"database"`
	Workers     WorkersConfig   `yaml:"workers"`
	PayTable    PayTableConfig  `yaml:"paytable"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	APIServer   APIServerConfig `yaml:"apiServer"`
	Log         LogConfig       `yaml:"log"`
}

// Default returns the configuration used when no file is supplied.
func Default() AppConfig {
	var cfg AppConfig
	cfg.normalise()
	return cfg
}

// Load reads the optional YAML file at configPath, applies environment
// overrides and validates the result. An empty path yields the defaults.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	return load(ctx, configPath, os.LookupEnv)
}

func load(_ context.Context, configPath string, lookup func(string) (string, bool)) (AppConfig, error) {
	var cfg AppConfig
	if strings.TrimSpace(configPath) != "" {
		reader, closer, err := openConfigFile(configPath)
		if err != nil {
			return AppConfig{}, err
		}
		defer closer()

		decoder := yaml.NewDecoder(reader)
		decoder.KnownFields(true)
		// An empty file decodes as io.EOF and leaves the defaults in place.
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return AppConfig{}, err
	}
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvCacheDir); ok && strings.TrimSpace(v) != "" {
		c.Cache.Directory = v
	}
	if v, ok := lookup(EnvCacheBackend); ok && strings.TrimSpace(v) != "" {
		c.Cache.Backend = ParseCacheBackend(v)
	}
	if v, ok := lookup(EnvDatabaseDSN); ok && strings.TrimSpace(v) != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvOPAPBaseURL); ok && strings.TrimSpace(v) != "" {
		c.OPAP.BaseURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvEnvironment); ok && strings.TrimSpace(v) != "" {
		c.Environment = Environment(v)
	}
	if v, ok := lookup(EnvFetchWorkers); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFetchWorkers, err)
		}
		c.Workers.Fetch = n
	}
	return nil
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	c.OPAP.applyDefaults()

	c.Cache.Backend = ParseCacheBackend(string(c.Cache.Backend))
	c.Cache.Directory = strings.TrimSpace(c.Cache.Directory)
	if c.Cache.Directory != "" {
		c.Cache.Directory = filepath.Clean(c.Cache.Directory)
	}
	if c.Cache.Backend == "" {
		// A cache directory alone opts into the file backend.
		if c.Cache.Directory != "" {
			c.Cache.Backend = CacheFile
		} else {
			c.Cache.Backend = CacheNone
		}
	}

	c.Database.applyDefaults()

	if c.Workers.Fetch == 0 {
		c.Workers.Fetch = 4
	}
	if c.Workers.Evaluate == 0 {
		c.Workers.Evaluate = 4
	}

	c.PayTable.Path = strings.TrimSpace(c.PayTable.Path)

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "kino"
	}
	if c.Telemetry.MetricInterval <= 0 {
		c.Telemetry.MetricInterval = 30 * time.Second
	}

	c.APIServer.applyDefaults()

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = logrus.InfoLevel.String()
	}
	c.Log.Format = LogFormat(strings.ToLower(strings.TrimSpace(string(c.Log.Format))))
	if c.Log.Format == "" {
		c.Log.Format = LogText
	}
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if err := c.OPAP.validate(); err != nil {
		return fmt.Errorf("opap: %w", err)
	}

	if !c.Cache.Backend.valid() {
		return fmt.Errorf("cache backend %q must be one of none, file, postgres, memory", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheFile && c.Cache.Directory == "" {
		return fmt.Errorf("cache directory required for file backend")
	}
	if c.Cache.Backend == CachePostgres {
		if err := c.Database.validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if c.Workers.Fetch <= 0 {
		return fmt.Errorf("workers fetch must be >0")
	}
	if c.Workers.Evaluate <= 0 {
		return fmt.Errorf("workers evaluate must be >0")
	}

	if c.Telemetry.EnableMetrics && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when metrics are enabled")
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Log.Format {
	case LogText, LogJSON:
	default:
		return fmt.Errorf("log format must be text or json")
	}
	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
