package jobs

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config controls the worker pool and retry policy.
type Config struct {
	Workers     int    `toml:"workers"`
	QueueSize   int    `toml:"queue_size"`
	MaxAttempts int    `toml:"max_attempts"`
	BackoffBase string `toml:"backoff_base"`
	BackoffMax  string `toml:"backoff_max"`
	JobTimeout  string `toml:"job_timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Workers     string
	QueueSize   string
	MaxAttempts string
	BackoffBase string
	BackoffMax  string
	JobTimeout  string
}

// BackoffBaseDuration returns BackoffBase as a time.Duration.
func (c *Config) BackoffBaseDuration() time.Duration {
	d, _ := time.ParseDuration(c.BackoffBase)
	return d
}

// BackoffMaxDuration returns BackoffMax as a time.Duration.
func (c *Config) BackoffMaxDuration() time.Duration {
	d, _ := time.ParseDuration(c.BackoffMax)
	return d
}

// JobTimeoutDuration returns JobTimeout as a time.Duration.
func (c *Config) JobTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.JobTimeout)
	return d
}

// Backoff returns the delay before retry number attempt (1-based), doubling
// from BackoffBase up to BackoffMax.
func (c *Config) Backoff(attempt int) time.Duration {
	d := c.BackoffBaseDuration()
	limit := c.BackoffMaxDuration()
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
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
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.QueueSize != 0 {
		c.QueueSize = overlay.QueueSize
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.BackoffBase != "" {
		c.BackoffBase = overlay.BackoffBase
	}
	if overlay.BackoffMax != "" {
		c.BackoffMax = overlay.BackoffMax
	}
	if overlay.JobTimeout != "" {
		c.JobTimeout = overlay.JobTimeout
	}
}

func (c *Config) loadDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.QueueSize == 0 {
		c.QueueSize = c.Workers * 16
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase == "" {
		c.BackoffBase = "2s"
	}
	if c.BackoffMax == "" {
		c.BackoffMax = "1m"
	}
	if c.JobTimeout == "" {
		c.JobTimeout = "30m"
	}
}

func (c *Config) loadEnv(env *Env) {
	ints := []struct {
		name string
		dst  *int
	}{
		{env.Workers, &c.Workers},
		{env.QueueSize, &c.QueueSize},
		{env.MaxAttempts, &c.MaxAttempts},
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

	strs := []struct {
		name string
		dst  *string
	}{
		{env.BackoffBase, &c.BackoffBase},
		{env.BackoffMax, &c.BackoffMax},
		{env.JobTimeout, &c.JobTimeout},
	}
	for _, f := range strs {
		if f.name == "" {
			continue
		}
		if v := os.Getenv(f.name); v != "" {
			*f.dst = v
		}
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive")
	}
	for name, v := range map[string]string{
		"backoff_base": c.BackoffBase,
		"backoff_max":  c.BackoffMax,
		"job_timeout":  c.JobTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
