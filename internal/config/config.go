// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

// Package config loads and validates Skywatch configuration via Koanf v2
// with layered sources (highest priority wins): environment variables,
// optional YAML config file, built-in defaults.
package config

import (
	"time"
)

// Config is the root configuration for the Skywatch server.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Jetstream JetstreamConfig `koanf:"jetstream"`
	Resolver  ResolverConfig  `koanf:"resolver"`
	AppView   AppViewConfig   `koanf:"appview"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Admin     AdminConfig     `koanf:"admin"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	// Path is the database file path, or ":memory:" for tests.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory caps DuckDB memory usage (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`

	// RetryAttempts is the persistence retry budget per operation.
	RetryAttempts int `koanf:"retry_attempts" validate:"min=1"`

	// RetryDelay is the initial retry backoff, doubled per attempt.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// JetstreamConfig configures the upstream firehose streams.
type JetstreamConfig struct {
	// Hosts is the non-empty set of Jetstream hostnames; one is picked
	// uniformly at random per connect.
	Hosts []string `koanf:"hosts" validate:"required,min=1"`

	// MaxWantedDIDs caps the wantedDids list in the options message.
	// Jetstream rejects lists above 10000.
	MaxWantedDIDs int `koanf:"max_wanted_dids" validate:"min=1"`

	// TempMaxConcurrent bounds the temporary backfill stream pool.
	TempMaxConcurrent int `koanf:"temp_max_concurrent" validate:"min=1"`

	// BackfillWindow is the upstream retention horizon.
	BackfillWindow time.Duration `koanf:"backfill_window"`

	// BackfillThreshold is the cursor age beyond which a stream counts as
	// backfilling.
	BackfillThreshold time.Duration `koanf:"backfill_threshold"`

	// ReconnectMaxDelay caps the exponential reconnect backoff.
	ReconnectMaxDelay time.Duration `koanf:"reconnect_max_delay"`

	// ValidCursorUptime is how long the main stream must have been up
	// before its cursor counts as valid.
	ValidCursorUptime time.Duration `koanf:"valid_cursor_uptime"`
}

// ResolverConfig configures DID document and audit log lookups.
type ResolverConfig struct {
	// PLCDirectoryURL is the did:plc directory base URL.
	PLCDirectoryURL string `koanf:"plc_directory_url" validate:"required,url"`

	// Timeout is the hard per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout"`

	// CacheCapacity bounds the DID-to-handle cache.
	CacheCapacity int `koanf:"cache_capacity" validate:"min=1"`
}

// AppViewConfig configures the public follow-graph API client.
type AppViewConfig struct {
	// PublicAPIURL is the appview base URL for getFollows.
	PublicAPIURL string `koanf:"public_api_url" validate:"required,url"`

	// PageLimit is the getFollows page size (max 100).
	PageLimit int `koanf:"page_limit" validate:"min=1,max=100"`

	// MaxPages caps pagination per user (~10000 follows at limit 100).
	MaxPages int `koanf:"max_pages" validate:"min=1"`

	// RequestsPerSecond throttles pagination against the public API.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// Timeout is the hard per-request HTTP timeout.
	Timeout time.Duration `koanf:"timeout"`
}

// ServerConfig configures the HTTP surface (status API, /metrics, /ws).
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins is the allowed origin list for the browser UI.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// AdminConfig identifies the operator account. Enforcement of admin-only
// operations happens in the API layer.
type AdminConfig struct {
	DID string `koanf:"did" validate:"omitempty,startswith=did:"`
}

// defaultConfig returns a Config with all defaults applied. These are
// overridden by config file and environment variables in that order.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:          "/data/skywatch.duckdb",
			MaxMemory:     "1GB",
			Threads:       0, // 0 = use runtime.NumCPU()
			RetryAttempts: 3,
			RetryDelay:    200 * time.Millisecond,
		},
		Jetstream: JetstreamConfig{
			Hosts: []string{
				"jetstream1.us-east.bsky.network",
				"jetstream2.us-east.bsky.network",
				"jetstream1.us-west.bsky.network",
				"jetstream2.us-west.bsky.network",
			},
			MaxWantedDIDs:     10000,
			TempMaxConcurrent: 50,
			BackfillWindow:    24 * time.Hour,
			BackfillThreshold: 60 * time.Second,
			ReconnectMaxDelay: 30 * time.Second,
			ValidCursorUptime: 30 * time.Second,
		},
		Resolver: ResolverConfig{
			PLCDirectoryURL: "https://plc.directory",
			Timeout:         10 * time.Second,
			CacheCapacity:   10000,
		},
		AppView: AppViewConfig{
			PublicAPIURL:      "https://public.api.bsky.app",
			PageLimit:         100,
			MaxPages:          100,
			RequestsPerSecond: 10,
			Timeout:           10 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8327,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admin: AdminConfig{
			DID: "",
		},
	}
}
