// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables named
// <SECTION>_<FIELD>, for example STORE_DRIVER or RUN_MAX_CONCURRENT.
type Config struct {
	Store    StoreConfig    `envconfig:"STORE"`
	DuckDB   DuckDBConfig   `envconfig:"DUCKDB"`
	Database DatabaseConfig `envconfig:"DB"`
	Jobs     JobsConfig     `envconfig:"JOBS"`
	Run      RunConfig      `envconfig:"RUN"`
	Server   ServerConfig   `envconfig:"SERVER"`
	Logging  LoggingConfig  `envconfig:"LOG"`
}

// Store drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// StoreConfig selects the analytical store.
type StoreConfig struct {
	// Driver is duckdb or postgres (default: duckdb)
	Driver string `split_words:"true" default:"duckdb"`

	// Schema is used for tables whose job file names no schema (default: plan)
	Schema string `split_words:"true" default:"plan"`
}

// DuckDBConfig holds the embedded store settings.
type DuckDBConfig struct {
	// Path is the database file; empty means in-memory (default: data/plan.duckdb)
	Path string `split_words:"true" default:"data/plan.duckdb"`
}

// DatabaseConfig holds PostgreSQL connection settings, used when STORE_DRIVER=postgres.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// DB_URL takes precedence over DATABASE_URL.
	URL string `split_words:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `split_words:"true" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `split_words:"true" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `split_words:"true" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `split_words:"true" default:"30m"`
}

// JobsConfig locates the job file.
type JobsConfig struct {
	// File is the YAML job file (default: jobs.yaml)
	File string `split_words:"true" default:"jobs.yaml"`
}

// RunConfig holds pipeline run settings.
type RunConfig struct {
	// MaxConcurrent is the maximum number of parallel runs (default: 1, DuckDB has one writer)
	MaxConcurrent int `split_words:"true" default:"1"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `split_words:"true" default:"30s"`

	// Timeout is the maximum duration for a single job run (default: 10m)
	Timeout time.Duration `split_words:"true" default:"10m"`

	// PreviewLimit is the default number of rows returned by previews (default: 5)
	PreviewLimit int `split_words:"true" default:"5"`

	// MaxFileSize is the maximum allowed source file size in bytes (default: 100MB)
	MaxFileSize int64 `split_words:"true" default:"104857600"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `split_words:"true" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `split_words:"true" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `split_words:"true" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 0, runs can be long)
	WriteTimeout time.Duration `split_words:"true" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `split_words:"true" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`

	// RequestTimeout is the middleware timeout for non-run requests (default: 60s)
	RequestTimeout time.Duration `split_words:"true" default:"60s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `split_words:"true" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `split_words:"true" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
