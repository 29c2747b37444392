// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mmynk/splitledger/internal/ledger"
)

// Drivers supported by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds everything the server needs at startup.
type Config struct {
	Addr            string
	DBDriver        string
	DBPath          string
	DatabaseURL     string
	JWTSecret       string
	TokenTTL        time.Duration
	RedisURL        string
	EventBuffer     int
	ShutdownTimeout time.Duration

	HandleDomain            string
	Currency                string
	LinkScheme              string
	AllowRejectAfterConfirm bool
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Load reads the environment, applying defaults for unset variables.
func Load() (*Config, error) {
	cfg := &Config{
		Addr:         getEnv("ADDR", ":8080"),
		DBDriver:     getEnv("DB_DRIVER", DriverSQLite),
		DBPath:       getEnv("DB_PATH", "./data/ledger.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		JWTSecret:    getEnv("JWT_SECRET", "dev-secret-change-me"),
		RedisURL:     os.Getenv("REDIS_URL"),
		HandleDomain: getEnv("PAYMENT_HANDLE_DOMAIN", "upi"),
		Currency:     getEnv("PAYMENT_CURRENCY", "INR"),
		LinkScheme:   getEnv("PAYMENT_LINK_SCHEME", "upi://pay"),
	}

	var err error
	if cfg.TokenTTL, err = time.ParseDuration(getEnv("TOKEN_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.EventBuffer, err = strconv.Atoi(getEnv("EVENT_BUFFER", "256")); err != nil {
		return nil, fmt.Errorf("invalid EVENT_BUFFER: %w", err)
	}
	if cfg.AllowRejectAfterConfirm, err = strconv.ParseBool(getEnv("ALLOW_REJECT_AFTER_CONFIRM", "false")); err != nil {
		return nil, fmt.Errorf("invalid ALLOW_REJECT_AFTER_CONFIRM: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted. It is called again after
// command line flags are applied.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("EVENT_BUFFER must be positive")
	}
	return nil
}

// Policy returns the payment workflow policy.
func (c *Config) Policy() ledger.Policy {
	return ledger.Policy{
		AllowRejectAfterConfirm: c.AllowRejectAfterConfirm,
		HandleDomain:            c.HandleDomain,
		Currency:                c.Currency,
		LinkScheme:              c.LinkScheme,
	}
}
