package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sluice.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: http://coach.internal:8000
  timeout: 45s
  headers:
    X-Api-Key: secret
state:
  dir: /var/lib/sluice
  flush_interval: 500ms
archive:
  enabled: true
  s3:
    bucket: coach-archive
    prefix: conversations
    region: eu-west-1
    endpoint: http://minio:9000
    path_style: true
adapter:
  type: webhook
  url: https://hooks.example.com/turns
  timeout: 10s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Backend.BaseURL != "http://coach.internal:8000" {
		t.Errorf("base_url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout.Duration != 45*time.Second {
		t.Errorf("timeout = %v", cfg.Backend.Timeout.Duration)
	}
	if cfg.Backend.Headers["X-Api-Key"] != "secret" {
		t.Errorf("headers = %v", cfg.Backend.Headers)
	}
	if cfg.State.Dir != "/var/lib/sluice" {
		t.Errorf("state dir = %q", cfg.State.Dir)
	}
	if cfg.State.FlushInterval.Duration != 500*time.Millisecond {
		t.Errorf("flush_interval = %v", cfg.State.FlushInterval.Duration)
	}
	if !cfg.Archive.Enabled || cfg.Archive.S3.Bucket != "coach-archive" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if !cfg.Archive.S3.PathStyle {
		t.Error("path_style not parsed")
	}
	if cfg.Adapter.Type != "webhook" || cfg.Adapter.URL != "https://hooks.example.com/turns" {
		t.Errorf("adapter = %+v", cfg.Adapter)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("SLUICE_TEST_TOKEN", "tok-123")

	path := writeConfig(t, `
backend:
  base_url: ${SLUICE_TEST_BASE:-http://127.0.0.1:8000}
  headers:
    Authorization: Bearer ${SLUICE_TEST_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://127.0.0.1:8000" {
		t.Errorf("default not applied: %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Headers["Authorization"] != "Bearer tok-123" {
		t.Errorf("headers = %v", cfg.Backend.Headers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "backend: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "backend:\n  timeout: soon\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	if cfg.Backend.BaseURL != DefaultBaseURL {
		t.Errorf("base_url = %q", cfg.Backend.BaseURL)
	}
	if cfg.State.Dir == "" {
		t.Error("state dir not defaulted")
	}
}

func TestNormalize_KeepsExplicitValues(t *testing.T) {
	cfg := Config{
		Backend: BackendConfig{BaseURL: "http://explicit:9000"},
		State:   StateConfig{Dir: "/tmp/s"},
	}
	cfg.Normalize()

	if cfg.Backend.BaseURL != "http://explicit:9000" || cfg.State.Dir != "/tmp/s" {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
}
