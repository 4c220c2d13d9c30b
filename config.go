// Package portal holds the configuration shared by the operator portal
// binaries.
package portal

import (
	"fmt"
	"time"
)

// Config holds the configuration for the portal server.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Admin     AdminConfig     `json:"admin" yaml:"admin"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	// Debug enables /api/debug/user.
	Debug bool `json:"debug" yaml:"debug"`
}

// DatabaseConfig selects the subscriber store and its health checking.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
	// PingInterval is how often connectivity is checked, e.g. "5s".
	PingInterval string `json:"ping_interval" yaml:"ping_interval"`
	// FailureThreshold consecutive failures mark the database unavailable.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// RetryAfter is how long requests are rejected before probing again.
	RetryAfter string `json:"retry_after" yaml:"retry_after"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	// TTL is the freshness window of cached responses, e.g. "60s".
	TTL string `json:"ttl" yaml:"ttl"`
}

// RateLimitConfig throttles login and registration per client IP.
// A zero RequestsPerSecond disables throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             float64 `json:"burst" yaml:"burst"`
}

// AdminConfig describes the administrator account seeded at startup.
type AdminConfig struct {
	Seed     bool   `json:"seed" yaml:"seed"`
	FIO      string `json:"fio" yaml:"fio"`
	Phone    string `json:"phone" yaml:"phone"`
	Password string `json:"password" yaml:"password"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":3000"},
		Database: DatabaseConfig{
			Driver:           "sqlite",
			DSN:              "portal.db",
			PingInterval:     "5s",
			FailureThreshold: 3,
			RetryAfter:       "10s",
		},
		Cache:     CacheConfig{TTL: "60s"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 10},
		Admin: AdminConfig{
			Seed:     true,
			FIO:      "Administrator",
			Phone:    "+375256082909",
			Password: "123123",
		},
	}
}

// CacheTTL parses the cache TTL.
func (c Config) CacheTTL() (time.Duration, error) {
	return parsePositiveDuration("cache.ttl", c.Cache.TTL)
}

// PingEvery parses the database ping interval.
func (d DatabaseConfig) PingEvery() (time.Duration, error) {
	return parsePositiveDuration("database.ping_interval", d.PingInterval)
}

// RetryAfterDuration parses the database retry window.
func (d DatabaseConfig) RetryAfterDuration() (time.Duration, error) {
	return parsePositiveDuration("database.retry_after", d.RetryAfter)
}

func parsePositiveDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, raw)
	}
	return d, nil
}
