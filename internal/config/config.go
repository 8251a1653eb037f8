// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends the server can run against.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config holds everything the server binary needs to start.
type Config struct {
	HTTPPort string

	// StoreBackend selects the rule persistence backend: "postgres" (default)
	// or "mongo".
	StoreBackend string
	DatabaseURL  string
	MongoURI     string
	MongoDB      string

	// RedisAddr enables the shared Redis rules cache when non-empty; left
	// empty, the server uses its in-process cache.
	RedisAddr string
	CacheTTL  time.Duration

	// ShowImpliesHidden switches the engine's default-visibility policy for
	// questions gated by Show rules.
	ShowImpliesHidden bool
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		StoreBackend:      getEnv("STORE_BACKEND", BackendPostgres),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:           getEnv("MONGO_DB", "surveyapp"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		CacheTTL:          getEnvDuration("CACHE_TTL", 0),
		ShowImpliesHidden: getEnvBool("SHOW_IMPLIES_HIDDEN", false),
	}

	switch cfg.StoreBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendMongo:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (use %s or %s)", cfg.StoreBackend, BackendPostgres, BackendMongo)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
