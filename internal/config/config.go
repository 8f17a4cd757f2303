// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the resolved process configuration.
type Config struct {
	Port string

	StorageDriver string
	DatabasePath  string
	MongoURI      string
	MongoDatabase string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	RedisAddr       string
	RedisPassword   string
	ProfileCacheTTL time.Duration

	NATSURL    string
	OTELTraces string
	LogLevel   slog.Level
}

// Load reads a .env file from the working directory when one exists, then
// resolves every setting from the environment. Variables already set in the
// environment take precedence over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv resolves the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:          envOrDefault("PORT", "8080"),
		StorageDriver: strings.ToLower(envOrDefault("STORAGE_DRIVER", DriverSQLite)),
		DatabasePath:  envOrDefault("DATABASE_PATH", "murmur.db"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: envOrDefault("MONGO_DATABASE", "murmur"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		NATSURL:       os.Getenv("NATS_URL"),
		OTELTraces:    strings.ToLower(envOrDefault("OTEL_TRACES", "none")),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is required")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET must be at least 32 characters for HMAC-SHA256 security")
	}

	switch cfg.StorageDriver {
	case DriverSQLite:
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("MONGO_URI is required when STORAGE_DRIVER=mongo")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	switch cfg.OTELTraces {
	case "none", "stdout":
	default:
		return nil, fmt.Errorf("unknown OTEL_TRACES %q", cfg.OTELTraces)
	}

	var err error
	if cfg.BcryptCost, err = intFromEnv("BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 14 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 4 and 14, got %d", cfg.BcryptCost)
	}

	if cfg.TokenTTL, err = durationFromEnv("TOKEN_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.ProfileCacheTTL, err = durationFromEnv("PROFILE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TokenTTL < 0 || cfg.ProfileCacheTTL < 0 {
		return nil, errors.New("TOKEN_TTL and PROFILE_CACHE_TTL must not be negative")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}

	return cfg, nil
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func intFromEnv(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationFromEnv(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
