package reference

import (
	"fmt"
	"os"
)

// Config locates an optional catalog file that replaces the embedded catalog.
type Config struct {
	CatalogFile string `toml:"catalog_file"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	CatalogFile string
}

// Finalize applies environment variable overrides and validation.
func (c *Config) Finalize(env *Env) error {
	if env != nil && env.CatalogFile != "" {
		if v := os.Getenv(env.CatalogFile); v != "" {
			c.CatalogFile = v
		}
	}
	if c.CatalogFile != "" {
		if _, err := os.Stat(c.CatalogFile); err != nil {
			return fmt.Errorf("catalog_file: %w", err)
		}
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.CatalogFile != "" {
		c.CatalogFile = overlay.CatalogFile
	}
}
