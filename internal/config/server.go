package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost            = "MRV_SERVER_HOST"
	EnvServerPort            = "MRV_SERVER_PORT"
	EnvServerReadTimeout     = "MRV_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "MRV_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout = "MRV_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds the HTTP listener settings. Write timeouts stay long
// because export downloads stream whole workbooks.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Timeouts returns the read, write, and shutdown timeouts. Values are
// validated by Finalize.
func (c *ServerConfig) Timeouts() (read, write, shutdown time.Duration) {
	read, _ = time.ParseDuration(c.ReadTimeout)
	write, _ = time.ParseDuration(c.WriteTimeout)
	shutdown, _ = time.ParseDuration(c.ShutdownTimeout)
	return read, write, shutdown
}

type durationSetting struct {
	name     string
	value    *string
	fallback string
	env      string
}

func (c *ServerConfig) durations() []durationSetting {
	return []durationSetting{
		{"read_timeout", &c.ReadTimeout, "1m", EnvServerReadTimeout},
		{"write_timeout", &c.WriteTimeout, "15m", EnvServerWriteTimeout},
		{"shutdown_timeout", &c.ShutdownTimeout, "30s", EnvServerShutdownTimeout},
	}
}

// Finalize applies defaults, then environment overrides, then validates.
func (c *ServerConfig) Finalize() error {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if v := os.Getenv(EnvServerHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid port %q", v)
		}
		c.Port = port
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	for _, d := range c.durations() {
		if *d.value == "" {
			*d.value = d.fallback
		}
		if v := os.Getenv(d.env); v != "" {
			*d.value = v
		}
		if _, err := time.ParseDuration(*d.value); err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
	}
	return nil
}

// Merge overwrites fields that are set in overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	src := overlay.durations()
	for i, d := range c.durations() {
		if v := *src[i].value; v != "" {
			*d.value = v
		}
	}
}
