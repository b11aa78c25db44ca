package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	devSecret = "dev_secret"
)

// Config holds application configuration values.
type Config struct {
	Env              string        `mapstructure:"ENV"`
	HTTPPort         string        `mapstructure:"HTTP_PORT"`
	DatabaseDriver   string        `mapstructure:"DATABASE_DRIVER"`
	DatabaseDSN      string        `mapstructure:"DATABASE_DSN"`
	DBMaxOpenConns   int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	CacheTTL         time.Duration `mapstructure:"CACHE_TTL"`
	AlertHorizonDays int           `mapstructure:"ALERT_HORIZON_DAYS"`
	MaxRetries       int           `mapstructure:"MAX_RETRIES"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	SweepActor       string        `mapstructure:"SWEEP_ACTOR"`
}

var keys = []string{
	"ENV", "HTTP_PORT", "DATABASE_DRIVER", "DATABASE_DSN", "DB_MAX_OPEN_CONNS",
	"JWT_SECRET", "REDIS_URL", "CACHE_TTL", "ALERT_HORIZON_DAYS", "MAX_RETRIES",
	"TIMEZONE", "LOG_LEVEL", "CORS_ORIGINS", "SWEEP_ACTOR",
	"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME",
}

// Load reads configuration from the environment (and .env when present)
// with reasonable defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("JWT_SECRET", devSecret)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("ALERT_HORIZON_DAYS", 30)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("SWEEP_ACTOR", "system:expiry-sweep")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "hmsinventory")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.DatabaseDSN == "" {
		switch cfg.DatabaseDriver {
		case DriverPostgres:
			cfg.DatabaseDSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
				v.GetString("DB_USER"), v.GetString("DB_PASSWORD"), v.GetString("DB_HOST"),
				v.GetString("DB_PORT"), v.GetString("DB_NAME"))
		default:
			cfg.DatabaseDSN = "hmsinventory.db"
		}
	}

	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT value %q", cfg.HTTPPort)
	}

	return cfg, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.DatabaseDriver != DriverSQLite && c.DatabaseDriver != DriverPostgres {
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.AlertHorizonDays < 0 {
		return fmt.Errorf("ALERT_HORIZON_DAYS must not be negative, got %d", c.AlertHorizonDays)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == devSecret) {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the configured time zone; calendar days (expiry, "today")
// are evaluated in it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
