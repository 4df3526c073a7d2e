package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("ATTUNE_DATABASE_URL", "postgres://localhost:5432/attune")
	t.Setenv("ATTUNE_AUTH_MODE", "disabled")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("default addr %q", cfg.Addr)
	}
	if cfg.ComplexCacheTTL != 5*time.Minute {
		t.Fatalf("default cache ttl %v", cfg.ComplexCacheTTL)
	}
	if !cfg.RunMigrations {
		t.Fatal("migrations should default to enabled")
	}
}

func TestLoadFromEnv_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("ATTUNE_DATABASE_URL", "")
	t.Setenv("ATTUNE_AUTH_MODE", "disabled")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error without database url")
	}
}

func TestLoadFromEnv_RequiredAuthNeedsKeys(t *testing.T) {
	t.Setenv("ATTUNE_DATABASE_URL", "postgres://localhost:5432/attune")
	t.Setenv("ATTUNE_AUTH_MODE", "required")
	t.Setenv("ATTUNE_API_KEYS", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error when auth required without keys")
	}

	t.Setenv("ATTUNE_API_KEYS", "key-one, key-two")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if len(cfg.APIKeys) != 2 {
		t.Fatalf("expected 2 api keys, got %d", len(cfg.APIKeys))
	}
	if _, ok := cfg.APIKeys["key-two"]; !ok {
		t.Fatal("csv keys not trimmed")
	}
}

func TestLoadFromEnv_InvalidAuthMode(t *testing.T) {
	t.Setenv("ATTUNE_DATABASE_URL", "postgres://localhost:5432/attune")
	t.Setenv("ATTUNE_AUTH_MODE", "sometimes")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for invalid auth mode")
	}
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("ATTUNE_DATABASE_URL", "postgres://localhost:5432/attune")
	t.Setenv("ATTUNE_AUTH_MODE", "disabled")
	t.Setenv("ATTUNE_RATE_LIMIT_RPS", "not-a-number")
	t.Setenv("ATTUNE_READ_TIMEOUT", "soon")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.LimitRPS != 5.0 {
		t.Fatalf("garbage float should fall back, got %v", cfg.LimitRPS)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Fatalf("garbage duration should fall back, got %v", cfg.ReadTimeout)
	}
}
