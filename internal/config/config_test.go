package config

import (
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_PORT", "STORE_BACKEND", "DATABASE_URL", "MONGO_URI", "MONGO_DB",
		"REDIS_ADDR", "CACHE_TTL", "SHOW_IMPLIES_HIDDEN",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/surveyapp?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.StoreBackend != BackendPostgres {
		t.Errorf("expected default backend postgres, got %s", cfg.StoreBackend)
	}
	if cfg.CacheTTL != 0 {
		t.Errorf("expected zero cache TTL, got %s", cfg.CacheTTL)
	}
	if cfg.ShowImpliesHidden {
		t.Error("ShowImpliesHidden should default to false")
	}
}

func TestLoadPostgresRequiresDatabaseURL(t *testing.T) {
	clearConfigEnv(t)

	if _, err := Load(); err == nil {
		t.Error("expected error for missing DATABASE_URL")
	}
}

func TestLoadMongoBackend(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("MONGO_URI", "mongodb://db:27017")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MongoURI != "mongodb://db:27017" {
		t.Errorf("unexpected mongo URI %s", cfg.MongoURI)
	}
	if cfg.MongoDB != "surveyapp" {
		t.Errorf("expected default mongo database, got %s", cfg.MongoDB)
	}
}

func TestLoadUnknownBackend(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("STORE_BACKEND", "cassandra")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/surveyapp?sslmode=disable")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("SHOW_IMPLIES_HIDDEN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.HTTPPort)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("expected redis addr, got %s", cfg.RedisAddr)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected 5m TTL, got %s", cfg.CacheTTL)
	}
	if !cfg.ShowImpliesHidden {
		t.Error("expected ShowImpliesHidden true")
	}
}

func TestGetEnvDurationBadValue(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")

	if got := getEnvDuration("CACHE_TTL", time.Minute); got != time.Minute {
		t.Errorf("unparsable duration should fall back to default, got %s", got)
	}
}
