package quality

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the bounds and thresholds of the detection rules.
type Config struct {
	DiameterMin       float64 `toml:"diameter_min"`
	DiameterMax       float64 `toml:"diameter_max"`
	HeightMin         float64 `toml:"height_min"`
	HeightMax         float64 `toml:"height_max"`
	SlopeMax          float64 `toml:"slope_max"`
	OutlierK          float64 `toml:"outlier_k"`
	OutlierMinSamples int     `toml:"outlier_min_samples"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	DiameterMin       string
	DiameterMax       string
	HeightMin         string
	HeightMax         string
	SlopeMax          string
	OutlierK          string
	OutlierMinSamples string
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
	if overlay.DiameterMin != 0 {
		c.DiameterMin = overlay.DiameterMin
	}
	if overlay.DiameterMax != 0 {
		c.DiameterMax = overlay.DiameterMax
	}
	if overlay.HeightMin != 0 {
		c.HeightMin = overlay.HeightMin
	}
	if overlay.HeightMax != 0 {
		c.HeightMax = overlay.HeightMax
	}
	if overlay.SlopeMax != 0 {
		c.SlopeMax = overlay.SlopeMax
	}
	if overlay.OutlierK != 0 {
		c.OutlierK = overlay.OutlierK
	}
	if overlay.OutlierMinSamples != 0 {
		c.OutlierMinSamples = overlay.OutlierMinSamples
	}
}

func (c *Config) loadDefaults() {
	if c.DiameterMin == 0 {
		c.DiameterMin = 1
	}
	if c.DiameterMax == 0 {
		c.DiameterMax = 300
	}
	if c.HeightMin == 0 {
		c.HeightMin = 1.3
	}
	if c.HeightMax == 0 {
		c.HeightMax = 80
	}
	if c.SlopeMax == 0 {
		c.SlopeMax = 100
	}
	if c.OutlierK == 0 {
		c.OutlierK = 3
	}
	if c.OutlierMinSamples == 0 {
		c.OutlierMinSamples = 10
	}
}

func (c *Config) loadEnv(env *Env) {
	floats := []struct {
		name string
		dst  *float64
	}{
		{env.DiameterMin, &c.DiameterMin},
		{env.DiameterMax, &c.DiameterMax},
		{env.HeightMin, &c.HeightMin},
		{env.HeightMax, &c.HeightMax},
		{env.SlopeMax, &c.SlopeMax},
		{env.OutlierK, &c.OutlierK},
	}
	for _, f := range floats {
		if f.name == "" {
			continue
		}
		if v := os.Getenv(f.name); v != "" {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*f.dst = n
			}
		}
	}
	if env.OutlierMinSamples != "" {
		if v := os.Getenv(env.OutlierMinSamples); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.OutlierMinSamples = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.DiameterMin >= c.DiameterMax {
		return fmt.Errorf("diameter_min must be below diameter_max")
	}
	if c.HeightMin >= c.HeightMax {
		return fmt.Errorf("height_min must be below height_max")
	}
	if c.SlopeMax <= 0 {
		return fmt.Errorf("slope_max must be positive")
	}
	if c.OutlierK <= 0 {
		return fmt.Errorf("outlier_k must be positive")
	}
	if c.OutlierMinSamples < 3 {
		return fmt.Errorf("outlier_min_samples must be at least 3")
	}
	return nil
}
