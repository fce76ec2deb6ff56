// Package config provides centralized configuration management for the
// server and batch binaries. It loads configuration from environment
// variables with sensible defaults and validates all settings on startup to
// fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Batch    BatchConfig
	Cache    CacheConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig

	offline bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response. Imports run
	// synchronously, so this must outlast IMPORT_TIMEOUT (default: 0, disabled)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-import requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required unless running offline)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema at startup (default: false)
	Migrate bool `env:"DB_MIGRATE" default:"false"`
}

// ImportConfig holds supplier file import settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of imports running at once (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long an import waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single import (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// Workers is the number of goroutines mapping rows of one file (default: 4)
	Workers int `env:"IMPORT_WORKERS" default:"4"`

	// BatchSize is the number of staging upserts sent per round trip (default: 500)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"500"`

	// FillSupplierID sets supplier_id from the supplier key when no rule maps it (default: true)
	FillSupplierID bool `env:"IMPORT_FILL_SUPPLIER_ID" default:"true"`

	// Encoding forces the CSV encoding; empty detects it per file
	Encoding string `env:"IMPORT_ENCODING"`
}

// BatchConfig holds directory batch settings.
type BatchConfig struct {
	// InputDir is scanned for supplier files (default: ./data/input)
	InputDir string `env:"BATCH_INPUT_DIR" default:"./data/input"`

	// ProcessedDir receives files that imported cleanly (default: ./data/processed)
	ProcessedDir string `env:"BATCH_PROCESSED_DIR" default:"./data/processed"`

	// ErrorDir receives failed files and their .error.log (default: ./data/error)
	ErrorDir string `env:"BATCH_ERROR_DIR" default:"./data/error"`

	// Schedule is the cron spec for the schedule command, seconds optional (default: every 5 minutes)
	Schedule string `env:"BATCH_SCHEDULE" default:"0 */5 * * * *"`

	// RulesFile is a YAML rule file used instead of the database rule tables
	RulesFile string `env:"BATCH_RULES_FILE"`
}

// CacheConfig holds rule cache settings.
type CacheConfig struct {
	// Enabled wraps the rule store in a per-supplier snapshot cache (default: true)
	Enabled bool `env:"RULE_CACHE_ENABLED" default:"true"`

	// TTL is how long a supplier snapshot is served before reloading (default: 5m)
	TTL time.Duration `env:"RULE_CACHE_TTL" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import endpoints (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of keys accepted for reads and imports
	APIKeys []string `env:"API_KEYS"`

	// AdminKeys is a comma-separated list of keys allowed to change rules.
	// Admin keys are also accepted wherever an API key is.
	AdminKeys []string `env:"ADMIN_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
