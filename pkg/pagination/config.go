// Package pagination pages list endpoints: request parsing from query
// strings, size limits, and the page envelope returned to clients.
package pagination

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config bounds the page size a client may request.
type Config struct {
	DefaultPageSize int `toml:"default_page_size" json:"default_page_size"`
	MaxPageSize     int `toml:"max_page_size" json:"max_page_size"`
}

// ConfigEnv names the environment variables that override Config.
type ConfigEnv struct {
	DefaultPageSize string
	MaxPageSize     string
}

type setting struct {
	value    *int
	fallback int
	env      string
}

func (c *Config) settings(env *ConfigEnv) []setting {
	var e ConfigEnv
	if env != nil {
		e = *env
	}
	return []setting{
		{&c.DefaultPageSize, 20, e.DefaultPageSize},
		{&c.MaxPageSize, 100, e.MaxPageSize},
	}
}

// Finalize applies defaults and environment overrides, then validates.
func (c *Config) Finalize(env *ConfigEnv) error {
	for _, s := range c.settings(env) {
		if *s.value <= 0 {
			*s.value = s.fallback
		}
		if s.env == "" {
			continue
		}
		if v := os.Getenv(s.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", s.env, err)
			}
			*s.value = n
		}
	}

	switch {
	case c.DefaultPageSize < 1 || c.MaxPageSize < 1:
		return errors.New("page sizes must be positive")
	case c.DefaultPageSize > c.MaxPageSize:
		return fmt.Errorf("default_page_size %d exceeds max_page_size %d", c.DefaultPageSize, c.MaxPageSize)
	}
	return nil
}

// Merge applies the positive values of overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.DefaultPageSize > 0 {
		c.DefaultPageSize = overlay.DefaultPageSize
	}
	if overlay.MaxPageSize > 0 {
		c.MaxPageSize = overlay.MaxPageSize
	}
}
