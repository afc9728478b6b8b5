package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML file at path (optional, may be empty), merges it over
// the built-in defaults, then applies UPDOWNBOT_* environment overrides.
// The caller should invoke Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// .env is optional; missing is not an error.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and endpoints at
// deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.App.Mode, "UPDOWNBOT_MODE")
	setStr(&cfg.App.LogLevel, "UPDOWNBOT_LOG_LEVEL")
	setFloat(&cfg.App.Bankroll, "UPDOWNBOT_BANKROLL")

	setStr(&cfg.Feeds.OracleURL, "UPDOWNBOT_ORACLE_URL")
	setStr(&cfg.Feeds.VenueURL, "UPDOWNBOT_VENUE_URL")
	setBool(&cfg.Feeds.BinanceEnabled, "UPDOWNBOT_BINANCE_ENABLED")

	setBool(&cfg.Redis.Enabled, "UPDOWNBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "UPDOWNBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "UPDOWNBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "UPDOWNBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "UPDOWNBOT_REDIS_TLS_ENABLED")

	setBool(&cfg.Postgres.Enabled, "UPDOWNBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "UPDOWNBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "UPDOWNBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "UPDOWNBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "UPDOWNBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "UPDOWNBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "UPDOWNBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "UPDOWNBOT_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "UPDOWNBOT_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Telemetry.Enabled, "UPDOWNBOT_TELEMETRY_ENABLED")
	setStr(&cfg.Telemetry.Addr, "UPDOWNBOT_TELEMETRY_ADDR")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
