package stats

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds aggregation settings.
type Config struct {
	AggregateInterval string `toml:"aggregate_interval"`
	Concurrency       int    `toml:"concurrency"`
	TopAnswersLimit   int    `toml:"top_answers_limit"`
	MaxPassAttempts   int    `toml:"max_pass_attempts"`
	EventBatch        int    `toml:"event_batch"`
	ExplorationsDir   string `toml:"explorations_dir"`
	OutputCacheTTL    string `toml:"output_cache_ttl"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	AggregateInterval string
	Concurrency       string
	TopAnswersLimit   string
	MaxPassAttempts   string
	EventBatch        string
	ExplorationsDir   string
	OutputCacheTTL    string
}

// IntervalDuration returns AggregateInterval as a time.Duration.
func (c *Config) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.AggregateInterval)
	return d
}

// OutputCacheTTLDuration returns OutputCacheTTL as a time.Duration.
func (c *Config) OutputCacheTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.OutputCacheTTL)
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
	if overlay.AggregateInterval != "" {
		c.AggregateInterval = overlay.AggregateInterval
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.TopAnswersLimit != 0 {
		c.TopAnswersLimit = overlay.TopAnswersLimit
	}
	if overlay.MaxPassAttempts != 0 {
		c.MaxPassAttempts = overlay.MaxPassAttempts
	}
	if overlay.EventBatch != 0 {
		c.EventBatch = overlay.EventBatch
	}
	if overlay.ExplorationsDir != "" {
		c.ExplorationsDir = overlay.ExplorationsDir
	}
	if overlay.OutputCacheTTL != "" {
		c.OutputCacheTTL = overlay.OutputCacheTTL
	}
}

func (c *Config) loadDefaults() {
	if c.AggregateInterval == "" {
		c.AggregateInterval = "10m"
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	if c.TopAnswersLimit == 0 {
		c.TopAnswersLimit = 100
	}
	if c.MaxPassAttempts == 0 {
		c.MaxPassAttempts = 3
	}
	if c.EventBatch == 0 {
		c.EventBatch = 500
	}
	if c.ExplorationsDir == "" {
		c.ExplorationsDir = "explorations"
	}
	if c.OutputCacheTTL == "" {
		c.OutputCacheTTL = "1m"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.AggregateInterval != "" {
		if v := os.Getenv(env.AggregateInterval); v != "" {
			c.AggregateInterval = v
		}
	}
	loadInt(env.Concurrency, &c.Concurrency)
	loadInt(env.TopAnswersLimit, &c.TopAnswersLimit)
	loadInt(env.MaxPassAttempts, &c.MaxPassAttempts)
	loadInt(env.EventBatch, &c.EventBatch)
	if env.ExplorationsDir != "" {
		if v := os.Getenv(env.ExplorationsDir); v != "" {
			c.ExplorationsDir = v
		}
	}
	if env.OutputCacheTTL != "" {
		if v := os.Getenv(env.OutputCacheTTL); v != "" {
			c.OutputCacheTTL = v
		}
	}
}

func loadInt(name string, dst *int) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.AggregateInterval)
	if err != nil {
		return fmt.Errorf("invalid aggregate_interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("aggregate_interval must be positive")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.TopAnswersLimit < 0 {
		return fmt.Errorf("top_answers_limit must not be negative")
	}
	if c.MaxPassAttempts < 1 {
		return fmt.Errorf("max_pass_attempts must be positive")
	}
	if c.EventBatch < 1 {
		return fmt.Errorf("event_batch must be positive")
	}
	ttl, err := time.ParseDuration(c.OutputCacheTTL)
	if err != nil {
		return fmt.Errorf("invalid output_cache_ttl: %w", err)
	}
	if ttl <= 0 {
		return fmt.Errorf("output_cache_ttl must be positive")
	}
	return nil
}
