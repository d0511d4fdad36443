// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
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
	Export   ExportConfig
	Decode   DecodeConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings. Saved mappings are
// kept in memory when URL is empty.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates the mapping_templates table on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// ExportConfig holds source upload and export worker settings.
type ExportConfig struct {
	// MaxFileSize is the maximum allowed source file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"EXPORT_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of exports running at once (default: 5)
	MaxConcurrent int `env:"EXPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an export slot (default: 30s)
	MaxWaitTime time.Duration `env:"EXPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single export (default: 10m)
	Timeout time.Duration `env:"EXPORT_TIMEOUT" default:"10m"`

	// Retention is how long a finished export stays downloadable (default: 30m)
	Retention time.Duration `env:"EXPORT_RETENTION" default:"30m"`

	// PreviewRows is the number of rows shown by mapping previews (default: 20)
	PreviewRows int `env:"EXPORT_PREVIEW_ROWS" default:"20"`

	// SourceTTL is how long a decoded source is kept after its last use (default: 30m)
	SourceTTL time.Duration `env:"EXPORT_SOURCE_TTL" default:"30m"`

	// MaxSources caps the decoded sources held in memory (default: 32)
	MaxSources int `env:"EXPORT_MAX_SOURCES" default:"32"`
}

// DecodeConfig holds source decoding settings.
type DecodeConfig struct {
	// Codepage is the DBF codepage, e.g. cp850 or windows-1252 (default: windows-1252)
	Codepage string `env:"DBF_CODEPAGE" default:"windows-1252"`

	// DetectCodePage honours the DBF language driver mark (default: true)
	DetectCodePage bool `env:"DBF_DETECT_CODEPAGE" default:"true"`

	// CSVEncoding is the text encoding of CSV uploads (default: utf-8)
	CSVEncoding string `env:"CSV_ENCODING" default:"utf-8"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for source upload and export start (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enables API key authentication on /api (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// Output is where logs go: console, file or both (default: console)
	Output string `env:"LOG_OUTPUT" default:"console"`

	// File is the log file path when Output includes file
	File string `env:"LOG_FILE" default:"logs/mapexport.log"`

	// MaxSizeMB is the size at which the log file is rotated (default: 100)
	MaxSizeMB int `env:"LOG_MAX_SIZE_MB" default:"100"`

	// MaxBackups is the number of rotated files to keep (default: 5)
	MaxBackups int `env:"LOG_MAX_BACKUPS" default:"5"`

	// MaxAgeDays is how long rotated files are kept (default: 28)
	MaxAgeDays int `env:"LOG_MAX_AGE_DAYS" default:"28"`

	// Compress gzips rotated files (default: true)
	Compress bool `env:"LOG_COMPRESS" default:"true"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled serves metrics at Path (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is the scrape path (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`

	// Runtime adds Go runtime and process collectors (default: true)
	Runtime bool `env:"METRICS_RUNTIME" default:"true"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
