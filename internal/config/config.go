package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                 string
	DatabaseURL         string
	RedisURL            string
	RedisTLSInsecure    bool
	AsynqQueue          string
	AsynqConcurrency    int
	OfferTimeoutHours   int
	SweepInterval       time.Duration
	HolidayAPIBaseURL   string
	DistanceAPIBaseURL  string
	ExternalAPITimeout  time.Duration
	OutboxDrainInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueue:          getEnv("ASYNQ_QUEUE", "dispatch"),
		AsynqConcurrency:    getPositiveInt("ASYNQ_CONCURRENCY", 10),
		OfferTimeoutHours:   getPositiveInt("OFFER_TIMEOUT_HOURS", 24),
		SweepInterval:       mustDuration(getEnv("OFFER_SWEEP_INTERVAL", "5m")),
		HolidayAPIBaseURL:   getEnv("HOLIDAY_API_BASE_URL", "https://date.nager.at/api/v3"),
		DistanceAPIBaseURL:  getEnv("DISTANCE_API_BASE_URL", ""),
		ExternalAPITimeout:  mustDuration(getEnv("EXTERNAL_API_TIMEOUT", "5s")),
		OutboxDrainInterval: mustDuration(getEnv("OUTBOX_DRAIN_INTERVAL", "15s")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("OFFER_SWEEP_INTERVAL must be a positive duration")
	}

	return cfg, nil
}

// GetRedisURL satisfies the scheduler's config interface.
func (c *Config) GetRedisURL() string { return c.RedisURL }

// GetRedisTLSInsecure satisfies the scheduler's config interface.
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// GetAsynqQueueName satisfies the scheduler's config interface.
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueue }

// GetAsynqConcurrency satisfies the scheduler's config interface.
func (c *Config) GetAsynqConcurrency() int { return c.AsynqConcurrency }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getPositiveInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
