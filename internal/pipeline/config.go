package pipeline

import (
	"fmt"
	"os"
	"time"
)

// Config controls stage advancement.
type Config struct {
	// LockTimeout bounds the wait for another advance of the same project
	// stage. Exceeding it reports a conflict.
	LockTimeout string `toml:"lock_timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	LockTimeout string
}

// LockTimeoutDuration returns LockTimeout as a time.Duration.
func (c *Config) LockTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.LockTimeout)
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
	if overlay.LockTimeout != "" {
		c.LockTimeout = overlay.LockTimeout
	}
}

func (c *Config) loadDefaults() {
	if c.LockTimeout == "" {
		c.LockTimeout = "30s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.LockTimeout != "" {
		if v := os.Getenv(env.LockTimeout); v != "" {
			c.LockTimeout = v
		}
	}
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.LockTimeout)
	if err != nil {
		return fmt.Errorf("invalid lock_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	return nil
}
