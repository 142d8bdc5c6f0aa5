package database_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/JaimeStill/tally/pkg/database"
)

func TestFinalizeDefaults(t *testing.T) {
	cfg := database.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	tests := []struct {
		name     string
		got      any
		expected any
	}{
		{"host", cfg.Host, "localhost"},
		{"port", cfg.Port, 5432},
		{"name", cfg.Name, "tally"},
		{"user", cfg.User, "tally"},
		{"ssl_mode", cfg.SSLMode, "disable"},
		{"max_open_conns", cfg.MaxOpenConns, 25},
		{"max_idle_conns", cfg.MaxIdleConns, 5},
		{"conn_max_lifetime", cfg.ConnMaxLifetime, "15m"},
		{"conn_timeout", cfg.ConnTimeout, "5s"},
		{"connect_attempts", cfg.ConnectAttempts, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %v, want %v", tt.got, tt.expected)
			}
		})
	}
}

func TestFinalizeEnvOverrides(t *testing.T) {
	t.Setenv("TEST_DB_HOST", "remotehost")
	t.Setenv("TEST_DB_PORT", "5433")
	t.Setenv("TEST_DB_NAME", "envdb")
	t.Setenv("TEST_DB_ATTEMPTS", "2")

	env := &database.Env{
		Host:            "TEST_DB_HOST",
		Port:            "TEST_DB_PORT",
		Name:            "TEST_DB_NAME",
		ConnectAttempts: "TEST_DB_ATTEMPTS",
	}

	cfg := database.Config{}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.Host != "remotehost" || cfg.Port != 5433 || cfg.Name != "envdb" || cfg.ConnectAttempts != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestFinalizeValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  database.Config
	}{
		{"bad lifetime", database.Config{ConnMaxLifetime: "forever"}},
		{"bad timeout", database.Config{ConnTimeout: "soon"}},
		{"negative attempts", database.Config{ConnectAttempts: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := database.Config{Host: "localhost", Port: 5432, Name: "tally"}
	base.Merge(&database.Config{Host: "db.internal", ConnectAttempts: 9})

	if base.Host != "db.internal" || base.ConnectAttempts != 9 {
		t.Errorf("overlay not applied: %+v", base)
	}
	if base.Port != 5432 || base.Name != "tally" {
		t.Errorf("zero overlay fields overwrote base: %+v", base)
	}
}

func TestDsn(t *testing.T) {
	cfg := database.Config{
		Host:     "db",
		Port:     5432,
		Name:     "tally",
		User:     "svc",
		Password: "p@ss word",
		SSLMode:  "disable",
	}

	want := "postgres://svc:p%40ss%20word@db:5432/tally?sslmode=disable"
	if got := cfg.Dsn(); got != want {
		t.Errorf("Dsn() = %s, want %s", got, want)
	}
}

func TestPingBeforeStart(t *testing.T) {
	cfg := database.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	sys, err := database.New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sys.Ready() {
		t.Error("Ready() = true before startup")
	}
	if err := sys.Ping(context.Background()); !errors.Is(err, database.ErrNotReady) {
		t.Errorf("Ping() = %v, want ErrNotReady", err)
	}
}
