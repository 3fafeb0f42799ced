package config

import (
	"testing"
	"time"
)

func TestLoadAPIConfigDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("MAX_UPLOAD_MB", "")
	cfg := LoadAPIConfig()
	if cfg.Addr != ":8000" {
		t.Fatalf("expected default addr, got %q", cfg.Addr)
	}
	if cfg.StoreDriver != StorePostgres {
		t.Fatalf("expected postgres driver, got %q", cfg.StoreDriver)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("expected 50MiB upload limit, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadAPIConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", " memory ")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("INGEST_WORKERS", "not-a-number")
	t.Setenv("AUTO_MIGRATE", "false")
	cfg := LoadAPIConfig()
	if cfg.StoreDriver != StoreMemory {
		t.Fatalf("expected memory driver, got %q", cfg.StoreDriver)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected 15m ttl, got %v", cfg.AccessTokenTTL)
	}
	if cfg.IngestWorkers != 4 {
		t.Fatalf("expected fallback workers on bad input, got %d", cfg.IngestWorkers)
	}
	if cfg.AutoMigrate {
		t.Fatal("expected auto migrate disabled")
	}
}
