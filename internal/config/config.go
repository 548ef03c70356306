// Package config defines service configuration and its loading layers.
package config

import "context"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreBackend selects the document store: memory or postgres.
	StoreBackend string `koanf:"store_backend"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `koanf:"postgres_dsn"`

	// AuthSecret enables HMAC verification of bearer tokens. Empty means
	// tokens are decoded but not verified (trusted gateway deployment).
	AuthSecret string `koanf:"auth_secret"`

	// HandleBuffer bounds each consumer's snapshot channel.
	HandleBuffer int `koanf:"handle_buffer"`

	// ReopenBackoffMS and ReopenBackoffMaxMS bound subscription reopen
	// delays after transport failures.
	ReopenBackoffMS    int `koanf:"reopen_backoff_ms"`
	ReopenBackoffMaxMS int `koanf:"reopen_backoff_max_ms"`

	// MatchWindowMS is the recency window for matching optimistic writes
	// against their authoritative echoes.
	MatchWindowMS int `koanf:"match_window_ms"`
}

// New creates a Config with defaults. Context is accepted first per the
// project-wide convention; it is reserved for future loading hooks.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		StoreBackend:       "memory",
		HandleBuffer:       8,
		ReopenBackoffMS:    250,
		ReopenBackoffMaxMS: 30_000,
		MatchWindowMS:      120_000,
	}
}
