package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TASK_PROCESSING_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8080")
	}
	if cfg.ProcessingTimeout != 5*time.Minute {
		t.Fatalf("ProcessingTimeout mismatch: got %v", cfg.ProcessingTimeout)
	}
	if !cfg.MemoryMode() {
		t.Fatal("expected memory mode without DATABASE_URL")
	}
}

func TestLoadConfigRequiresDatabaseInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL in production")
	}
}

func TestLoadConfigHonorsOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("STATUS_CACHE_TTL_SECONDS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "1919" {
		t.Fatalf("Port mismatch: got %q", cfg.Port)
	}
	if cfg.StatusCacheTTL != 5*time.Second {
		t.Fatalf("StatusCacheTTL mismatch: got %v", cfg.StatusCacheTTL)
	}
	if cfg.MemoryMode() {
		t.Fatal("expected database mode with DATABASE_URL set")
	}
}
