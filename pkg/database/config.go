package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds PostgreSQL connection and pool settings. Durations are Go
// duration strings.
type Config struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Name            string `toml:"name"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	SSLMode         string `toml:"ssl_mode"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	ConnTimeout     string `toml:"conn_timeout"`
}

// Env names the environment variables that override Config fields. Empty
// names are ignored.
type Env struct {
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    string
	MaxIdleConns    string
	ConnMaxLifetime string
	ConnTimeout     string
}

type textField struct {
	value    *string
	fallback string
	env      string
	overlay  string
}

type intField struct {
	value    *int
	fallback int
	env      string
	overlay  int
}

// fields pairs each setting with its default, env name, and the matching
// overlay value. env and overlay may be nil.
func (c *Config) fields(env *Env, overlay *Config) ([]textField, []intField) {
	var e Env
	if env != nil {
		e = *env
	}
	var o Config
	if overlay != nil {
		o = *overlay
	}

	text := []textField{
		{&c.Host, "localhost", e.Host, o.Host},
		{&c.Name, "mrv", e.Name, o.Name},
		{&c.User, "mrv", e.User, o.User},
		{&c.Password, "", e.Password, o.Password},
		{&c.SSLMode, "disable", e.SSLMode, o.SSLMode},
		{&c.ConnMaxLifetime, "15m", e.ConnMaxLifetime, o.ConnMaxLifetime},
		{&c.ConnTimeout, "5s", e.ConnTimeout, o.ConnTimeout},
	}
	ints := []intField{
		{&c.Port, 5432, e.Port, o.Port},
		{&c.MaxOpenConns, 25, e.MaxOpenConns, o.MaxOpenConns},
		{&c.MaxIdleConns, 5, e.MaxIdleConns, o.MaxIdleConns},
	}
	return text, ints
}

// ConnMaxLifetimeDuration returns ConnMaxLifetime as a time.Duration.
func (c *Config) ConnMaxLifetimeDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnMaxLifetime)
	return d
}

// ConnTimeoutDuration returns ConnTimeout as a time.Duration.
func (c *Config) ConnTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnTimeout)
	return d
}

// Dsn returns the keyword/value connection string used by the pgx driver.
func (c *Config) Dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode,
	)
}

// URL returns the connection string in postgres:// form, as expected by
// the migration driver.
func (c *Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Finalize applies defaults, then environment overrides, then validates.
func (c *Config) Finalize(env *Env) error {
	text, ints := c.fields(env, nil)

	for _, f := range text {
		if *f.value == "" {
			*f.value = f.fallback
		}
		if v := lookup(f.env); v != "" {
			*f.value = v
		}
	}
	for _, f := range ints {
		if *f.value == 0 {
			*f.value = f.fallback
		}
		if v := lookup(f.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.env, err)
			}
			*f.value = n
		}
	}

	if c.Name == "" || c.User == "" {
		return errors.New("name and user required")
	}
	if _, err := time.ParseDuration(c.ConnMaxLifetime); err != nil {
		return fmt.Errorf("invalid conn_max_lifetime: %w", err)
	}
	if _, err := time.ParseDuration(c.ConnTimeout); err != nil {
		return fmt.Errorf("invalid conn_timeout: %w", err)
	}
	return nil
}

// Merge overwrites fields that are set in overlay.
func (c *Config) Merge(overlay *Config) {
	text, ints := c.fields(nil, overlay)
	for _, f := range text {
		if f.overlay != "" {
			*f.value = f.overlay
		}
	}
	for _, f := range ints {
		if f.overlay != 0 {
			*f.value = f.overlay
		}
	}
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
