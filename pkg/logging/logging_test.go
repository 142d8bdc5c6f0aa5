package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JaimeStill/tally/pkg/logging"
)

func TestConsoleAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tally.log")
	cfg := &logging.Config{File: path}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	var console bytes.Buffer
	logger := logging.New(cfg, &console)

	logger.With("system", "answers").Info("answer shard opened", "exp_id", "exp_1", "shard", 2)
	logger.Debug("hidden at info level")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := console.String()
	if !strings.Contains(out, "answer shard opened") || !strings.Contains(out, "exp_1") {
		t.Errorf("console output missing entry: %s", out)
	}
	if strings.Contains(out, "hidden at info level") {
		t.Errorf("debug entry logged at info level: %s", out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("file entry not JSON: %v: %s", err, data)
	}
	if entry["msg"] != "answer shard opened" || entry["system"] != "answers" || entry["level"] != "INFO" {
		t.Errorf("file entry = %v", entry)
	}
}

func TestConsoleOnly(t *testing.T) {
	cfg := &logging.Config{Level: "debug"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	var console bytes.Buffer
	logger := logging.New(cfg, &console)
	logger.Debug("aggregation pass started")

	if !strings.Contains(console.String(), "aggregation pass started") {
		t.Errorf("debug entry missing: %s", console.String())
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestConfigFinalize(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := logging.Config{}
		if err := cfg.Finalize(nil); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		if cfg.Level != "info" || cfg.MaxSizeMB != 100 || cfg.MaxBackups != 5 || cfg.MaxAgeDays != 30 {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("TEST_LOG_LEVEL", "warn")
		t.Setenv("TEST_LOG_COMPRESS", "true")

		cfg := logging.Config{}
		if err := cfg.Finalize(&logging.Env{Level: "TEST_LOG_LEVEL", Compress: "TEST_LOG_COMPRESS"}); err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		if cfg.Level != "warn" || !cfg.Compress {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	tests := []struct {
		name string
		cfg  logging.Config
	}{
		{"bad level", logging.Config{Level: "loud"}},
		{"negative size", logging.Config{MaxSizeMB: -1}},
		{"negative backups", logging.Config{MaxBackups: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
