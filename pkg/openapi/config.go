package openapi

import (
	"fmt"
	"os"
	"strings"
)

const (
	defaultTitle       = "MRV API"
	defaultDescription = "Forest inventory pipeline: data import, quality control, model assignment, and biomass calculation."
)

// Config holds the document metadata.
type Config struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
}

// ConfigEnv names the environment variables that override Config fields.
type ConfigEnv struct {
	Title       string
	Description string
}

// Finalize fills defaults, applies env overrides, and rejects a blank title.
func (c *Config) Finalize(env *ConfigEnv) error {
	if env != nil {
		override(&c.Title, env.Title)
		override(&c.Description, env.Description)
	}
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.Description == "" {
		c.Description = defaultDescription
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("title must not be blank")
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Title != "" {
		c.Title = overlay.Title
	}
	if overlay.Description != "" {
		c.Description = overlay.Description
	}
}

func override(field *string, key string) {
	if key == "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}
