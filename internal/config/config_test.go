package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.RetryLimit != 3 {
		t.Errorf("default retry limit = %d, want 3", cfg.Store.RetryLimit)
	}
	if cfg.Store.BatchSize != 1000 {
		t.Errorf("default batch size = %d, want 1000", cfg.Store.BatchSize)
	}
	if cfg.Queue.InputTopic != "stitchkb.documents" {
		t.Errorf("default input topic = %q", cfg.Queue.InputTopic)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stitchkb.toml")
	content := `
[store]
dsn = "postgres://localhost/kb"
retry_limit = 5

[queue]
addr = "broker:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DSN != "postgres://localhost/kb" {
		t.Errorf("dsn = %q", cfg.Store.DSN)
	}
	if cfg.Store.RetryLimit != 5 {
		t.Errorf("retry limit = %d, want 5", cfg.Store.RetryLimit)
	}
	if cfg.Queue.Addr != "broker:6379" {
		t.Errorf("queue addr = %q", cfg.Queue.Addr)
	}
	// Settings absent from the file keep their defaults.
	if cfg.Queue.OutputTopic != "stitchkb.graphs" {
		t.Errorf("output topic = %q, want default", cfg.Queue.OutputTopic)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STITCHKB_DB_DSN", "postgres://env/kb")
	t.Setenv("STITCHKB_RETRY_LIMIT", "7")
	t.Setenv("STITCHKB_S3_USE_SSL", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DSN != "postgres://env/kb" {
		t.Errorf("dsn = %q, want env override", cfg.Store.DSN)
	}
	if cfg.Store.RetryLimit != 7 {
		t.Errorf("retry limit = %d, want 7", cfg.Store.RetryLimit)
	}
	if !cfg.Storage.UseSSL {
		t.Error("use_ssl env override ignored")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load() accepted a missing config file")
	}
}
