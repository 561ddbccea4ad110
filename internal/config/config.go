package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/mrv/internal/compute"
	"github.com/JaimeStill/mrv/internal/jobs"
	"github.com/JaimeStill/mrv/internal/pipeline"
	"github.com/JaimeStill/mrv/internal/quality"
	"github.com/JaimeStill/mrv/internal/reference"
	"github.com/JaimeStill/mrv/pkg/database"
	"github.com/JaimeStill/mrv/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvMRVEnv             = "MRV_ENV"
	EnvMRVStore           = "MRV_STORE"
	EnvMRVShutdownTimeout = "MRV_SHUTDOWN_TIMEOUT"
	EnvMRVVersion         = "MRV_VERSION"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

var databaseEnv = &database.Env{
	Host:            "MRV_DB_HOST",
	Port:            "MRV_DB_PORT",
	Name:            "MRV_DB_NAME",
	User:            "MRV_DB_USER",
	Password:        "MRV_DB_PASSWORD",
	SSLMode:         "MRV_DB_SSL_MODE",
	MaxOpenConns:    "MRV_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "MRV_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "MRV_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "MRV_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Backend:          "MRV_STORAGE_BACKEND",
	ContainerName:    "MRV_STORAGE_CONTAINER_NAME",
	ConnectionString: "MRV_STORAGE_CONNECTION_STRING",
	AccountURL:       "MRV_STORAGE_ACCOUNT_URL",
}

var jobsEnv = &jobs.Env{
	Workers:     "MRV_JOBS_WORKERS",
	QueueSize:   "MRV_JOBS_QUEUE_SIZE",
	MaxAttempts: "MRV_JOBS_MAX_ATTEMPTS",
	BackoffBase: "MRV_JOBS_BACKOFF_BASE",
	BackoffMax:  "MRV_JOBS_BACKOFF_MAX",
	JobTimeout:  "MRV_JOBS_JOB_TIMEOUT",
}

var computeEnv = &compute.Env{
	Engine:      "MRV_COMPUTE_ENGINE",
	Endpoint:    "MRV_COMPUTE_ENDPOINT",
	Timeout:     "MRV_COMPUTE_TIMEOUT",
	RateLimit:   "MRV_COMPUTE_RATE_LIMIT",
	Burst:       "MRV_COMPUTE_BURST",
	ChunkSize:   "MRV_COMPUTE_CHUNK_SIZE",
	Parallelism: "MRV_COMPUTE_PARALLELISM",
}

var qualityEnv = &quality.Env{
	DiameterMin:       "MRV_QUALITY_DIAMETER_MIN",
	DiameterMax:       "MRV_QUALITY_DIAMETER_MAX",
	HeightMin:         "MRV_QUALITY_HEIGHT_MIN",
	HeightMax:         "MRV_QUALITY_HEIGHT_MAX",
	SlopeMax:          "MRV_QUALITY_SLOPE_MAX",
	OutlierK:          "MRV_QUALITY_OUTLIER_K",
	OutlierMinSamples: "MRV_QUALITY_OUTLIER_MIN_SAMPLES",
}

var referenceEnv = &reference.Env{
	CatalogFile: "MRV_REFERENCE_CATALOG_FILE",
}

var pipelineEnv = &pipeline.Env{
	LockTimeout: "MRV_PIPELINE_LOCK_TIMEOUT",
}

// Config is the root configuration for the MRV service.
type Config struct {
	Server          ServerConfig     `toml:"server"`
	Database        database.Config  `toml:"database"`
	Storage         storage.Config   `toml:"storage"`
	API             APIConfig        `toml:"api"`
	Logging         LoggingConfig    `toml:"logging"`
	Telemetry       TelemetryConfig  `toml:"telemetry"`
	Jobs            jobs.Config      `toml:"jobs"`
	Compute         compute.Config   `toml:"compute"`
	Quality         quality.Config   `toml:"quality"`
	Reference       reference.Config `toml:"reference"`
	Pipeline        pipeline.Config  `toml:"pipeline"`
	Store           string           `toml:"store"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Version         string           `toml:"version"`
}

// Env returns the MRV_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvMRVEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Logging.Merge(&overlay.Logging)
	c.Telemetry.Merge(&overlay.Telemetry)
	c.Jobs.Merge(&overlay.Jobs)
	c.Compute.Merge(&overlay.Compute)
	c.Quality.Merge(&overlay.Quality)
	c.Reference.Merge(&overlay.Reference)
	c.Pipeline.Merge(&overlay.Pipeline)
}

// Finalize applies defaults, environment variable overrides, and validation
// to the root config and every section.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	sections := []section{
		{"server", c.Server.Finalize},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"api", c.API.Finalize},
		{"logging", c.Logging.Finalize},
		{"telemetry", c.Telemetry.Finalize},
		{"jobs", func() error { return c.Jobs.Finalize(jobsEnv) }},
		{"compute", func() error { return c.Compute.Finalize(computeEnv) }},
		{"quality", func() error { return c.Quality.Finalize(qualityEnv) }},
		{"reference", func() error { return c.Reference.Finalize(referenceEnv) }},
		{"pipeline", func() error { return c.Pipeline.Finalize(pipelineEnv) }},
	}
	if c.Store == StorePostgres {
		sections = append(sections, section{"database", func() error { return c.Database.Finalize(databaseEnv) }})
	}

	for _, s := range sections {
		if err := s.finalize(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

type section struct {
	name     string
	finalize func() error
}

func (c *Config) loadDefaults() {
	if c.Store == "" {
		c.Store = StorePostgres
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvMRVStore); v != "" {
		c.Store = v
	}
	if v := os.Getenv(EnvMRVShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvMRVVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("unsupported store %q", c.Store)
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvMRVEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
