package answers

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/tally/pkg/formatting"
)

// Config holds answer log settings.
type Config struct {
	MaxShardSize      string `toml:"max_shard_size"`
	MaxAppendAttempts int    `toml:"max_append_attempts"`
	RetryBase         string `toml:"retry_base"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	MaxShardSize      string
	MaxAppendAttempts string
	RetryBase         string
}

// MaxShardBytes returns MaxShardSize as a byte count.
func (c *Config) MaxShardBytes() int {
	n, _ := formatting.ParseBytes(c.MaxShardSize)
	return int(n)
}

// RetryBaseDuration returns RetryBase as a time.Duration.
func (c *Config) RetryBaseDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryBase)
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
	if overlay.MaxShardSize != "" {
		c.MaxShardSize = overlay.MaxShardSize
	}
	if overlay.MaxAppendAttempts != 0 {
		c.MaxAppendAttempts = overlay.MaxAppendAttempts
	}
	if overlay.RetryBase != "" {
		c.RetryBase = overlay.RetryBase
	}
}

func (c *Config) loadDefaults() {
	if c.MaxShardSize == "" {
		c.MaxShardSize = "1MB"
	}
	if c.MaxAppendAttempts == 0 {
		c.MaxAppendAttempts = 5
	}
	if c.RetryBase == "" {
		c.RetryBase = "50ms"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.MaxShardSize != "" {
		if v := os.Getenv(env.MaxShardSize); v != "" {
			c.MaxShardSize = v
		}
	}
	if env.MaxAppendAttempts != "" {
		if v := os.Getenv(env.MaxAppendAttempts); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxAppendAttempts = n
			}
		}
	}
	if env.RetryBase != "" {
		if v := os.Getenv(env.RetryBase); v != "" {
			c.RetryBase = v
		}
	}
}

func (c *Config) validate() error {
	n, err := formatting.ParseBytes(c.MaxShardSize)
	if err != nil {
		return fmt.Errorf("invalid max_shard_size: %w", err)
	}
	if n < minShardSize {
		return fmt.Errorf("max_shard_size must be at least %d bytes", minShardSize)
	}
	if c.MaxAppendAttempts < 1 {
		return fmt.Errorf("max_append_attempts must be positive")
	}
	d, err := time.ParseDuration(c.RetryBase)
	if err != nil {
		return fmt.Errorf("invalid retry_base: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("retry_base must be positive")
	}
	return nil
}
