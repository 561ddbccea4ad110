package compute

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Engine kinds.
const (
	EngineLocal  = "local"
	EngineRemote = "remote"
)

// Config selects the model engine and bounds how stages evaluate records.
type Config struct {
	Engine      string  `toml:"engine"`
	Endpoint    string  `toml:"endpoint"`
	Timeout     string  `toml:"timeout"`
	RateLimit   float64 `toml:"rate_limit"`
	Burst       int     `toml:"burst"`
	ChunkSize   int     `toml:"chunk_size"`
	Parallelism int     `toml:"parallelism"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Engine      string
	Endpoint    string
	Timeout     string
	RateLimit   string
	Burst       string
	ChunkSize   string
	Parallelism string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Engine != "" {
		c.Engine = overlay.Engine
	}
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.RateLimit != 0 {
		c.RateLimit = overlay.RateLimit
	}
	if overlay.Burst != 0 {
		c.Burst = overlay.Burst
	}
	if overlay.ChunkSize != 0 {
		c.ChunkSize = overlay.ChunkSize
	}
	if overlay.Parallelism != 0 {
		c.Parallelism = overlay.Parallelism
	}
}

// NewEngine builds the engine the config selects.
func (c *Config) NewEngine() (Engine, error) {
	switch c.Engine {
	case EngineLocal:
		return NewLocal(), nil
	case EngineRemote:
		return NewRemote(c), nil
	default:
		return nil, fmt.Errorf("unknown compute engine %q", c.Engine)
	}
}

func (c *Config) loadDefaults() {
	if c.Engine == "" {
		c.Engine = EngineLocal
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
	if c.RateLimit == 0 {
		c.RateLimit = 20
	}
	if c.Burst == 0 {
		c.Burst = 5
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 500
	}
	if c.Parallelism == 0 {
		c.Parallelism = 4
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Engine != "" {
		if v := os.Getenv(env.Engine); v != "" {
			c.Engine = v
		}
	}
	if env.Endpoint != "" {
		if v := os.Getenv(env.Endpoint); v != "" {
			c.Endpoint = v
		}
	}
	if env.Timeout != "" {
		if v := os.Getenv(env.Timeout); v != "" {
			c.Timeout = v
		}
	}
	if env.RateLimit != "" {
		if v := os.Getenv(env.RateLimit); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.RateLimit = f
			}
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{env.Burst, &c.Burst},
		{env.ChunkSize, &c.ChunkSize},
		{env.Parallelism, &c.Parallelism},
	}
	for _, f := range ints {
		if f.name == "" {
			continue
		}
		if v := os.Getenv(f.name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*f.dst = n
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Engine {
	case EngineLocal:
	case EngineRemote:
		if c.Endpoint == "" {
			return fmt.Errorf("endpoint required for the remote engine")
		}
	default:
		return fmt.Errorf("engine must be %q or %q, got %q", EngineLocal, EngineRemote, c.Engine)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if c.RateLimit <= 0 || c.Burst < 1 {
		return fmt.Errorf("rate_limit and burst must be positive")
	}
	if c.ChunkSize < 1 || c.Parallelism < 1 {
		return fmt.Errorf("chunk_size and parallelism must be positive")
	}
	return nil
}
