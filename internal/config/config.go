package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port              string  `env:"PORT" envDefault:"8080"`
	AuthToken         string  `env:"AUTH_TOKEN"`
	DBURL             string  `env:"DB_URL"`
	ReadTimeoutSecs   int     `env:"SERVER_READ_TIMEOUT" envDefault:"15"`
	WriteTimeoutSecs  int     `env:"SERVER_WRITE_TIMEOUT" envDefault:"15"`
	IdleTimeoutSecs   int     `env:"SERVER_IDLE_TIMEOUT" envDefault:"60"`
	DBMaxConns        int     `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns        int     `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxIdleSecs     int     `env:"DB_MAX_CONN_IDLE_SECS" envDefault:"300"`
	DBMaxLifeSecs     int     `env:"DB_MAX_CONN_LIFETIME_SECS" envDefault:"3600"`
	DBConnTimeoutSecs int     `env:"DB_CONN_TIMEOUT_SECS" envDefault:"10"`
	DBStatementCache  int     `env:"DB_STATEMENT_CACHE_CAPACITY" envDefault:"256"`
	LogLevel          string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string  `env:"LOG_FORMAT" envDefault:"console"`
	ListDefaultLimit  int     `env:"LIST_DEFAULT_LIMIT" envDefault:"100"`
	ListMaxLimit      int     `env:"LIST_MAX_LIMIT" envDefault:"1000"`
	RateLimitPerHour  float64 `env:"RATE_LIMIT_PER_HOUR" envDefault:"100"`
	RateLimitBurst    int     `env:"RATE_LIMIT_BURST" envDefault:"100"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool    `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.ListDefaultLimit <= 0 {
		return Config{}, fmt.Errorf("LIST_DEFAULT_LIMIT must be positive")
	}
	// LIST_MAX_LIMIT=0 disables the cap.
	if cfg.ListMaxLimit < 0 {
		return Config{}, fmt.Errorf("LIST_MAX_LIMIT must be non-negative")
	}
	if cfg.ListMaxLimit > 0 && cfg.ListDefaultLimit > cfg.ListMaxLimit {
		return Config{}, fmt.Errorf("LIST_DEFAULT_LIMIT cannot exceed LIST_MAX_LIMIT")
	}
	if cfg.RateLimitPerHour < 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_PER_HOUR must be non-negative")
	}
	if cfg.RateLimitPerHour > 0 && cfg.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	return cfg, nil
}
