// internal/config/config.go
// Package config loads client settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/erilali/turing/internal/conn"
	"github.com/erilali/turing/internal/journal"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

const (
	DefaultWSBase       = "ws://localhost:8000/api"
	DefaultAPIBase      = "http://localhost:8000/api"
	DefaultLoggerConfig = "logger_config.json"
	JournalNone         = "none"
	JournalNATS         = "nats"
	JournalRedis        = "redis"
)

type Config struct {
	WSBase            string
	APIBase           string
	Token             string
	MaxRetries        int
	ReconnectInterval time.Duration
	Journal           string
	NatsURL           string
	Redis             journal.RedisConfig
	LoggerConfig      string
}

func Default() Config {
	return Config{
		WSBase:            DefaultWSBase,
		APIBase:           DefaultAPIBase,
		MaxRetries:        conn.DefaultMaxRetries,
		ReconnectInterval: conn.DefaultReconnectInterval,
		Journal:           JournalNone,
		NatsURL:           nats.DefaultURL,
		Redis:             journal.DefaultRedisConfig(),
		LoggerConfig:      DefaultLoggerConfig,
	}
}

// Load reads envFile into the process environment (a missing file is not
// an error; variables already set win) and then builds the Config.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables over Default. The
// web client's NEXT_PUBLIC_* names are honoured as fallbacks.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := first("TURING_WS_BASE", "NEXT_PUBLIC_WS_BASE"); v != "" {
		cfg.WSBase = v
	}
	if v := first("TURING_API_BASE", "NEXT_PUBLIC_API_BASE_URL"); v != "" {
		cfg.APIBase = v
	}
	cfg.Token = strings.TrimSpace(os.Getenv("TURING_TOKEN"))

	if v := os.Getenv("TURING_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("TURING_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("TURING_RECONNECT_INTERVAL"); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return Config{}, fmt.Errorf("TURING_RECONNECT_INTERVAL: %w", err)
		}
		cfg.ReconnectInterval = d
	}
	if v := os.Getenv("TURING_JOURNAL"); v != "" {
		cfg.Journal = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("TURING_LOGGER_CONFIG"); v != "" {
		cfg.LoggerConfig = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NatsURL = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}
	if v := os.Getenv("REDIS_PREFIX"); v != "" {
		cfg.Redis.Prefix = v
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Journal {
	case JournalNone, JournalNATS, JournalRedis:
	default:
		return fmt.Errorf("unknown journal %q (want none, nats or redis)", c.Journal)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect interval must be positive, got %v", c.ReconnectInterval)
	}
	return nil
}

// parseInterval accepts a Go duration ("3s") or plain milliseconds ("3000").
func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func first(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
