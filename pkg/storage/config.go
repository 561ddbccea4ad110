package storage

import (
	"fmt"
	"os"
)

// Backends supported by New.
const (
	BackendAzure  = "azure"
	BackendMemory = "memory"
)

// Config holds blob storage settings. The azure backend authenticates with
// ConnectionString when set, otherwise with the default Azure credential
// chain against AccountURL.
type Config struct {
	Backend          string `toml:"backend"`
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	AccountURL       string `toml:"account_url"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Backend          string
	ContainerName    string
	ConnectionString string
	AccountURL       string
}

func (c *Config) fields(env *Env) []struct{ value, env *string } {
	if env == nil {
		env = &Env{}
	}
	return []struct{ value, env *string }{
		{&c.Backend, &env.Backend},
		{&c.ContainerName, &env.ContainerName},
		{&c.ConnectionString, &env.ConnectionString},
		{&c.AccountURL, &env.AccountURL},
	}
}

// Finalize applies defaults, then environment overrides, then validates
// the settings the selected backend needs.
func (c *Config) Finalize(env *Env) error {
	if c.Backend == "" {
		c.Backend = BackendAzure
	}
	if c.ContainerName == "" {
		c.ContainerName = "mrv"
	}
	for _, f := range c.fields(env) {
		if *f.env == "" {
			continue
		}
		if v := os.Getenv(*f.env); v != "" {
			*f.value = v
		}
	}

	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendAzure:
		if c.ConnectionString == "" && c.AccountURL == "" {
			return fmt.Errorf("connection_string or account_url required")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
}

// Merge overwrites fields that are set in overlay.
func (c *Config) Merge(overlay *Config) {
	src := overlay.fields(nil)
	for i, f := range c.fields(nil) {
		if v := *src[i].value; v != "" {
			*f.value = v
		}
	}
}
