package classifiers

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds classifier training settings.
type Config struct {
	DefaultAlgorithm string `toml:"default_algorithm"`
	TrainingQueue    int    `toml:"training_queue"`
	ArchiveModels    bool   `toml:"archive_models"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	DefaultAlgorithm string
	TrainingQueue    string
	ArchiveModels    string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. ArchiveModels always applies.
func (c *Config) Merge(overlay *Config) {
	c.ArchiveModels = overlay.ArchiveModels

	if overlay.DefaultAlgorithm != "" {
		c.DefaultAlgorithm = overlay.DefaultAlgorithm
	}
	if overlay.TrainingQueue != 0 {
		c.TrainingQueue = overlay.TrainingQueue
	}
}

func (c *Config) loadDefaults() {
	if c.DefaultAlgorithm == "" {
		c.DefaultAlgorithm = "LDAStringClassifier"
	}
	if c.TrainingQueue == 0 {
		c.TrainingQueue = 16
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.DefaultAlgorithm != "" {
		if v := os.Getenv(env.DefaultAlgorithm); v != "" {
			c.DefaultAlgorithm = v
		}
	}
	if env.TrainingQueue != "" {
		if v := os.Getenv(env.TrainingQueue); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.TrainingQueue = n
			}
		}
	}
	if env.ArchiveModels != "" {
		if v := os.Getenv(env.ArchiveModels); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.ArchiveModels = b
			}
		}
	}
}

func (c *Config) validate() error {
	if c.TrainingQueue < 1 {
		return fmt.Errorf("training_queue must be positive")
	}
	return nil
}
