package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr            string
	CRDBDSN             string
	MongoURI            string
	MongoDB             string
	RedisAddr           string
	RabbitURL           string
	OTLPEndpoint        string
	InstanceID          string
	LogLevel            string
	Migrate             bool
	SessionTTL          time.Duration
	SubscriptionTimeout time.Duration
	IdempotencyTTL      time.Duration
	RateLimitPerMinute  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		host, _ := os.Hostname()
		instanceID = host + "-" + uuid.NewString()[:8]
	}

	return &Config{
		HTTPAddr:            envOr("HTTP_ADDR", ":8080"),
		CRDBDSN:             os.Getenv("CRDB_DSN"),
		MongoURI:            os.Getenv("MONGO_URI"),
		MongoDB:             envOr("MONGO_DB", "concert"),
		RedisAddr:           envOr("REDIS_ADDR", "localhost:6379"),
		RabbitURL:           os.Getenv("RABBIT_URL"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		InstanceID:          instanceID,
		LogLevel:            envOr("LOG_LEVEL", "info"),
		Migrate:             os.Getenv("MIGRATE") == "true",
		SessionTTL:          durationOr("SESSION_TTL", 24*time.Hour),
		SubscriptionTimeout: durationOr("SUBSCRIPTION_TIMEOUT", 0),
		IdempotencyTTL:      durationOr("IDEMPOTENCY_TTL", time.Hour),
		RateLimitPerMinute:  intOr("RATE_LIMIT_PER_MINUTE", 30),
	}, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func intOr(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
