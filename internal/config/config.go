package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	FeedPollInterval   time.Duration
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() Config {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	port := os.Getenv("ROUTING_PORT")
	if port == "" {
		port = "8086"
	}

	return Config{
		Port:               port,
		DatabaseURL:        os.Getenv("DB_DSN"),
		FeedPollInterval:   readDurationSeconds("FEED_POLL_SECONDS", 5),
		OutboxPollInterval: readDurationSeconds("OUTBOX_POLL_SECONDS", 1),
		OutboxBatchSize:    readInt("OUTBOX_BATCH_SIZE", 100),
		RateLimitPerMinute: readInt("RATE_LIMIT_PER_MINUTE", 300),
		RateLimitBurst:     readInt("RATE_LIMIT_BURST", 60),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
