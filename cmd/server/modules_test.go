package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JaimeStill/tally/internal/config"
	"github.com/JaimeStill/tally/internal/infrastructure"
)

func TestNativeRoutes(t *testing.T) {
	cfg, err := config.LoadFile(t.TempDir() + "/config.toml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	infra, err := infrastructure.NewWithConsole(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("infrastructure: %v", err)
	}
	defer infra.Close()

	router := buildRouter(infra)

	serve := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		return rec
	}

	if rec := serve("/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	rec := serve("/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before startup = %d, want 503", rec.Code)
	}
	var body readiness
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode readiness: %v", err)
	}
	if body.Status != "not ready" || body.Checks["startup"] {
		t.Errorf("readiness = %+v", body)
	}

	rec = serve("/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("metrics status = %d", rec.Code)
	}
}
