// Package config loads application settings from environment variables
// with defaults, and validates them on startup to fail fast on
// misconfiguration.
package config

import (
	"fmt"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Import   ImportConfig
	LLM      LLMConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 so event streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight imports (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects the contact store backend.
type StoreConfig struct {
	// Driver is postgres, sqlite or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `env:"SQLITE_PATH" default:"data/rolodex.db"`
}

// ImportConfig holds CSV import pipeline settings.
type ImportConfig struct {
	// MaxFileSize is the upload ceiling in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// MaxContacts is the per-user stored contact ceiling (default: 10000)
	MaxContacts int `env:"IMPORT_MAX_CONTACTS" default:"10000"`

	// MaxRecordTokens is the per-record size ceiling (default: 500)
	MaxRecordTokens int `env:"IMPORT_MAX_RECORD_TOKENS" default:"500"`

	// ApproachingRatio is the share of MaxContacts that triggers the
	// capacity warning (default: 0.9)
	ApproachingRatio float64 `env:"IMPORT_APPROACHING_RATIO" default:"0.9"`

	// MaxConcurrent is the number of imports running at once (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// BatchRows caps rows per normalization batch (default: 25)
	BatchRows int `env:"IMPORT_BATCH_ROWS" default:"25"`

	// Concurrency caps parallel normalizer calls per batch (default: 5)
	Concurrency int `env:"IMPORT_CONCURRENCY" default:"5"`

	// SaveBatchSize is contacts written per store call (default: 100)
	SaveBatchSize int `env:"IMPORT_SAVE_BATCH_SIZE" default:"100"`

	PreviewDelay  time.Duration `env:"IMPORT_PREVIEW_DELAY" default:"500ms"`
	BatchDelay    time.Duration `env:"IMPORT_BATCH_DELAY" default:"200ms"`
	CompleteDelay time.Duration `env:"IMPORT_COMPLETE_DELAY" default:"3s"`

	// Timeout bounds a whole import including user decisions (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`

	// SessionTTL is how long a finished session stays readable (default: 10m)
	SessionTTL time.Duration `env:"IMPORT_SESSION_TTL" default:"10m"`
}

// LLMConfig configures the OpenAI-compatible normalizer. Without an API
// key the offline heuristic normalizer is used.
type LLMConfig struct {
	BaseURL string        `env:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string        `env:"LLM_MODEL" default:"gpt-4.1-mini"`
	APIKey  string        `env:"LLM_API_KEY" envAlt:"OPENAI_API_KEY"`
	Timeout time.Duration `env:"LLM_TIMEOUT" default:"60s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import uploads (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
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

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.Store.Driver == "sqlite" {
		return c.Store.SQLitePath
	}
	return c.Database.URL
}

// maskedKey keeps only the last four characters of a secret.
func maskedKey(k string) string {
	if k == "" {
		return `""`
	}
	if len(k) <= 4 {
		return "[MASKED]"
	}
	return fmt.Sprintf("[MASKED]...%s", k[len(k)-4:])
}
