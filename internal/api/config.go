package api

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBDriver        string // "sqlite" (default) or "pgx"
	DBDSN           string
	JWTKey          string
	JWTIssuer       string
	ShutdownTimeout time.Duration
	MaxBatch        int
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"
}

// LoadConfig reads configuration from ROLLCALL_SERVER_* environment
// variables with sensible defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		DBDriver:        "sqlite",
		DBDSN:           "./data/server.db",
		JWTIssuer:       "rollcall",
		ShutdownTimeout: 30 * time.Second,
		MaxBatch:        1000,
		LogFormat:       "json",
		LogLevel:        "info",
	}

	if v := os.Getenv("ROLLCALL_SERVER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ROLLCALL_SERVER_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("ROLLCALL_SERVER_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("ROLLCALL_SERVER_JWT_KEY"); v != "" {
		cfg.JWTKey = v
	}
	if v := os.Getenv("ROLLCALL_SERVER_JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("ROLLCALL_SERVER_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("ROLLCALL_SERVER_MAX_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxBatch = n
		}
	}
	if v := os.Getenv("ROLLCALL_SERVER_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("ROLLCALL_SERVER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}
