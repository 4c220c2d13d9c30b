package portal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads and parses a config file from the given path on top of
// DefaultConfig. Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	return &cfg, nil
}

// ApplyEnv overrides cfg from environment variables read through getenv:
// PORT, CORS_ORIGINS (comma separated), DATABASE_DRIVER, DATABASE_DSN and
// CACHE_TTL.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if p := getenv("PORT"); p != "" {
		cfg.Server.Addr = ":" + p
	}
	if origins := getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = strings.Split(origins, ",")
	}
	if d := getenv("DATABASE_DRIVER"); d != "" {
		cfg.Database.Driver = d
	}
	if dsn := getenv("DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if ttl := getenv("CACHE_TTL"); ttl != "" {
		cfg.Cache.TTL = ttl
	}
}

// ValidateConfig validates a Config for correctness.
func ValidateConfig(cfg Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
	}
	if _, err := cfg.Database.PingEvery(); err != nil {
		return err
	}
	if _, err := cfg.Database.RetryAfterDuration(); err != nil {
		return err
	}
	if cfg.Database.FailureThreshold < 0 {
		return fmt.Errorf("database.failure_threshold must not be negative")
	}

	if _, err := cfg.CacheTTL(); err != nil {
		return err
	}

	if cfg.RateLimit.RequestsPerSecond < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	if cfg.Admin.Seed {
		if cfg.Admin.Phone == "" {
			return fmt.Errorf("admin.phone is required when admin.seed is enabled")
		}
		if cfg.Admin.Password == "" {
			return fmt.Errorf("admin.password is required when admin.seed is enabled")
		}
	}

	return nil
}
