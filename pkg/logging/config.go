package logging

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap/zapcore"
)

// Config holds log level and file rotation settings. An empty File
// disables the rotating file output.
type Config struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Level      string
	File       string
	MaxSizeMB  string
	MaxBackups string
	MaxAgeDays string
	Compress   string
}

// ZapLevel returns Level as a zapcore.Level, defaulting to info.
func (c *Config) ZapLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Compress always applies.
func (c *Config) Merge(overlay *Config) {
	c.Compress = overlay.Compress

	if overlay.Level != "" {
		c.Level = overlay.Level
	}
	if overlay.File != "" {
		c.File = overlay.File
	}
	if overlay.MaxSizeMB != 0 {
		c.MaxSizeMB = overlay.MaxSizeMB
	}
	if overlay.MaxBackups != 0 {
		c.MaxBackups = overlay.MaxBackups
	}
	if overlay.MaxAgeDays != 0 {
		c.MaxAgeDays = overlay.MaxAgeDays
	}
}

func (c *Config) loadDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.MaxSizeMB == 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = 30
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Level != "" {
		if v := os.Getenv(env.Level); v != "" {
			c.Level = v
		}
	}
	if env.File != "" {
		if v := os.Getenv(env.File); v != "" {
			c.File = v
		}
	}
	if env.MaxSizeMB != "" {
		if v := os.Getenv(env.MaxSizeMB); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxSizeMB = n
			}
		}
	}
	if env.MaxBackups != "" {
		if v := os.Getenv(env.MaxBackups); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxBackups = n
			}
		}
	}
	if env.MaxAgeDays != "" {
		if v := os.Getenv(env.MaxAgeDays); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxAgeDays = n
			}
		}
	}
	if env.Compress != "" {
		if v := os.Getenv(env.Compress); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Compress = b
			}
		}
	}
}

func (c *Config) validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	if c.MaxSizeMB < 1 {
		return fmt.Errorf("max_size_mb must be positive")
	}
	if c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return fmt.Errorf("max_backups and max_age_days must be non-negative")
	}
	return nil
}
