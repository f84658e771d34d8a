package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "memory" {
		t.Fatalf("expected memory database, got %s", cfg.Database)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected log defaults: %s %s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected metrics addr %s", cfg.MetricsAddr)
	}
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	t.Setenv("TREASURY_DATABASE", "postgres")
	if _, err := Load(""); err == nil {
		t.Fatal("expected missing DSN error")
	}

	t.Setenv("TREASURY_POSTGRES_DSN", "postgres://localhost/treasury?sslmode=disable")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PostgresDSN == "" {
		t.Fatal("expected DSN to be read")
	}
}

func TestLoadRejectsUnknownDatabase(t *testing.T) {
	t.Setenv("TREASURY_DATABASE", "cassandra")
	if _, err := Load(""); err == nil {
		t.Fatal("expected unsupported database error")
	}
}

func TestLoadEventBuffer(t *testing.T) {
	t.Setenv("TREASURY_EVENT_BUFFER", "256")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EventBufferSize != 256 {
		t.Fatalf("expected buffer 256, got %d", cfg.EventBufferSize)
	}

	t.Setenv("TREASURY_EVENT_BUFFER", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("expected invalid buffer error")
	}
}
