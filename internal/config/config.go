// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"
)

// Leaderboard store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory score submission queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of submission workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the in-memory submission id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// Store selects the leaderboard backend: memory, redis, postgres or sqlite.
	Store string `koanf:"store"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// RedisAddr enables redis for the leaderboard, live relay, shared
	// country cache and submission dedupe. Empty disables all of them.
	RedisAddr string `koanf:"redis_addr"`

	// RedisChannel is the pub/sub channel for live leaderboard updates.
	RedisChannel string `koanf:"redis_channel"`

	PostgresDSN string `koanf:"postgres_dsn"`

	CountriesURL    string `koanf:"countries_url"`
	CountriesTTLSec int    `koanf:"countries_ttl_sec"`

	GeoURL            string `koanf:"geo_url"`
	GeoDefaultCountry string `koanf:"geo_default_country"`
	GeoCacheSize      int    `koanf:"geo_cache_size"`

	// TrustedProxies is a comma separated list of CIDRs or addresses whose
	// X-Forwarded-For and X-Real-IP headers are believed.
	TrustedProxies string `koanf:"trusted_proxies"`

	// JWTSecret verifies identity tokens. Empty means every player is anonymous.
	JWTSecret string `koanf:"jwt_secret"`

	// AnalyticsKey enables event capture when set.
	AnalyticsKey  string `koanf:"analytics_key"`
	AnalyticsHost string `koanf:"analytics_host"`

	// LeaderboardLimit caps GET /leaderboard.
	LeaderboardLimit int `koanf:"leaderboard_limit"`

	// SessionTTLSec evicts games idle for longer.
	SessionTTLSec int `koanf:"session_ttl_sec"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":8080",
		QueueSize:         10_000,
		WorkerCount:       runtime.NumCPU() * 2,
		DedupeSize:        50_000,
		Store:             StoreMemory,
		SQLitePath:        "flaggy.db",
		RedisChannel:      "flaggy:leaderboard",
		CountriesURL:      "https://restcountries.com/v3.1",
		CountriesTTLSec:   6 * 60 * 60,
		GeoURL:            "http://ip-api.com",
		GeoDefaultCountry: "NG",
		GeoCacheSize:      10_000,
		AnalyticsHost:     "https://app.posthog.com",
		LeaderboardLimit:  20,
		SessionTTLSec:     30 * 60,
	}
}

// CountriesTTL returns CountriesTTLSec as a duration.
func (c *Config) CountriesTTL() time.Duration {
	return time.Duration(c.CountriesTTLSec) * time.Second
}

// SessionTTL returns SessionTTLSec as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case !slices.Contains([]string{StoreMemory, StoreRedis, StorePostgres, StoreSQLite}, c.Store):
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StoreRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: store redis needs redis_addr", ErrInvalidConfig)
	case c.Store == StorePostgres && c.PostgresDSN == "":
		return fmt.Errorf("%w: store postgres needs postgres_dsn", ErrInvalidConfig)
	case c.GeoCacheSize <= 0:
		return fmt.Errorf("%w: geo_cache_size must be positive", ErrInvalidConfig)
	case c.LeaderboardLimit < 1:
		return fmt.Errorf("%w: leaderboard_limit must be at least 1", ErrInvalidConfig)
	case c.SessionTTLSec <= 0 || c.CountriesTTLSec <= 0:
		return fmt.Errorf("%w: ttl values must be positive", ErrInvalidConfig)
	}
	return nil
}
