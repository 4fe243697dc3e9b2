/*
config.go - Process configuration

PURPOSE:
  Collects everything cmd/server needs from the environment. A .env
  file in the working directory is loaded first when present; real
  environment variables win over it.

VARIABLES:
  PORT            HTTP port (default 8080)
  DB_DRIVER       sqlite | postgres (default sqlite)
  DB_PATH         SQLite file, ":memory:" allowed (default parcel.db)
  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME
                  Postgres connection, used when DB_DRIVER=postgres
  REDIS_ADDR      host:port; enables the distributed entity lock
  REDIS_PASSWORD
  LOCK_TTL        lock lease, Go duration (default 30s)
  LOG_LEVEL       logrus level (default info)
  LOG_FORMAT      json | text (default json)
  CORS_ORIGINS    comma-separated allowed origins (default *)
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port int

	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	LogLevel    string
	LogFormat   string
	CORSOrigins []string
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{
		DBDriver:      strings.ToLower(env("DB_DRIVER", DriverSQLite)),
		DBPath:        env("DB_PATH", "parcel.db"),
		DBHost:        env("DB_HOST", "localhost"),
		DBUser:        env("DB_USER", "postgres"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        env("DB_NAME", "parcel"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogLevel:      env("LOG_LEVEL", "info"),
		LogFormat:     env("LOG_FORMAT", "json"),
		CORSOrigins:   splitList(env("CORS_ORIGINS", "*")),
	}

	var err error
	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.DBPort, err = intEnv("DB_PORT", 5432); err != nil {
		return Config{}, err
	}
	if cfg.LockTTL, err = time.ParseDuration(env("LOCK_TTL", "30s")); err != nil {
		return Config{}, fmt.Errorf("LOCK_TTL: %w", err)
	}

	switch cfg.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return Config{}, fmt.Errorf("DB_DRIVER: unknown driver %q", cfg.DBDriver)
	}
	return cfg, nil
}

// PostgresDSN renders the key/value DSN understood by the pgx driver.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
