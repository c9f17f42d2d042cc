package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string
	DBSSLMode   string

	RedisURL string

	MeiliSearchHost string
	MeiliMasterKey  string

	JWTSecret string

	BrokerQueueSize int
	BrokerSlowGrace time.Duration

	WSPingInterval time.Duration
	WSPongWait     time.Duration
	WSWriteWait    time.Duration
	WSMaxMessage   int64

	ReconcileCron      string
	ReconcileBatchSize int

	RateLimitComment time.Duration
	CommentMaxLength int

	DisplayCacheSize int
	DisplayCacheTTL  time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  os.Getenv("DB_PASSWORD"),
		DBName:      getEnv("DB_NAME", "threadline"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		RedisURL: os.Getenv("REDIS_URL"),

		MeiliSearchHost: os.Getenv("MEILISEARCH_HOST"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		JWTSecret: getEnv("JWT_SECRET", "12345"),

		ReconcileCron: getEnv("RECONCILE_CRON", "@every 1h"),
	}

	var err error
	if cfg.BrokerQueueSize, err = parseInt("BROKER_QUEUE_SIZE", "64"); err != nil {
		return nil, err
	}
	if cfg.BrokerSlowGrace, err = parseDuration("BROKER_SLOW_GRACE", "5s"); err != nil {
		return nil, err
	}
	if cfg.WSPingInterval, err = parseDuration("WS_PING_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if cfg.WSPongWait, err = parseDuration("WS_PONG_WAIT", "60s"); err != nil {
		return nil, err
	}
	if cfg.WSWriteWait, err = parseDuration("WS_WRITE_WAIT", "10s"); err != nil {
		return nil, err
	}
	maxMessage, err := parseInt("WS_MAX_MESSAGE", "8192")
	if err != nil {
		return nil, err
	}
	cfg.WSMaxMessage = int64(maxMessage)
	if cfg.ReconcileBatchSize, err = parseInt("RECONCILE_BATCH_SIZE", "200"); err != nil {
		return nil, err
	}
	if cfg.RateLimitComment, err = parseDuration("RATE_LIMIT_COMMENT", "3s"); err != nil {
		return nil, err
	}
	if cfg.CommentMaxLength, err = parseInt("COMMENT_MAX_LENGTH", "5000"); err != nil {
		return nil, err
	}
	if cfg.DisplayCacheSize, err = parseInt("DISPLAY_CACHE_SIZE", "1024"); err != nil {
		return nil, err
	}
	if cfg.DisplayCacheTTL, err = parseDuration("DISPLAY_CACHE_TTL", "5m"); err != nil {
		return nil, err
	}

	if cfg.WSPingInterval >= cfg.WSPongWait {
		return nil, fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", cfg.WSPingInterval, cfg.WSPongWait)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}
