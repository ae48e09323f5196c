package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr     string
	LogLevel slog.Level

	APIURL     string
	APIKey     string
	APITimeout time.Duration
	APIRetries int

	DefaultTimeout time.Duration
	MaxProfiles    int
	SessionIdleTTL time.Duration

	// DatabaseURL selects the Postgres store; otherwise BadgerPath, and
	// finally an in-memory store.
	DatabaseURL string
	BadgerPath  string

	FallbackFile   string
	FallbackBucket string
	FallbackKey    string
	FallbackTTL    time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret    string
	JWTIssuer    string
	DevAllowAuth bool
}

const (
	defaultAddr           = ":8060"
	defaultAPITimeout     = 5 * time.Second
	defaultAPIRetries     = 1
	defaultResolveTimeout = 5 * time.Second
	defaultMaxProfiles    = 10000
	defaultSessionIdleTTL = 30 * time.Minute
	defaultFallbackTTL    = 5 * time.Minute
	defaultKafkaTopic     = "placement-events"
)

func Load() (Config, error) {
	cfg := Config{
		Addr:           getEnv("PLACEMENT_ENGINE_ADDR", defaultAddr),
		LogLevel:       parseLevel(os.Getenv("PLACEMENT_ENGINE_LOG_LEVEL")),
		APIURL:         os.Getenv("PLACEMENT_ENGINE_API_URL"),
		APIKey:         os.Getenv("PLACEMENT_ENGINE_API_KEY"),
		APITimeout:     getDuration("PLACEMENT_ENGINE_API_TIMEOUT", defaultAPITimeout),
		APIRetries:     getInt("PLACEMENT_ENGINE_API_RETRIES", defaultAPIRetries),
		DefaultTimeout: getDuration("PLACEMENT_ENGINE_DEFAULT_TIMEOUT", defaultResolveTimeout),
		MaxProfiles:    getInt("PLACEMENT_ENGINE_MAX_PROFILES", defaultMaxProfiles),
		SessionIdleTTL: getDuration("PLACEMENT_ENGINE_SESSION_IDLE_TTL", defaultSessionIdleTTL),
		DatabaseURL:    firstNonEmpty(os.Getenv("PLACEMENT_ENGINE_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		BadgerPath:     os.Getenv("PLACEMENT_ENGINE_BADGER_PATH"),
		FallbackFile:   os.Getenv("PLACEMENT_ENGINE_FALLBACK_FILE"),
		FallbackBucket: os.Getenv("PLACEMENT_ENGINE_FALLBACK_S3_BUCKET"),
		FallbackKey:    os.Getenv("PLACEMENT_ENGINE_FALLBACK_S3_KEY"),
		FallbackTTL:    getDuration("PLACEMENT_ENGINE_FALLBACK_TTL", defaultFallbackTTL),
		KafkaBrokers:   parseCSV(os.Getenv("PLACEMENT_ENGINE_KAFKA_BROKERS")),
		KafkaTopic:     getEnv("PLACEMENT_ENGINE_KAFKA_TOPIC", defaultKafkaTopic),
		JWTSecret:      os.Getenv("PLACEMENT_ENGINE_JWT_SECRET"),
		JWTIssuer:      os.Getenv("PLACEMENT_ENGINE_JWT_ISSUER"),
		DevAllowAuth:   getBool("PLACEMENT_ENGINE_DEV_ALLOW_LOCAL", false),
	}
	if cfg.APIURL == "" {
		return Config{}, fmt.Errorf("PLACEMENT_ENGINE_API_URL required")
	}
	if cfg.JWTSecret == "" && !cfg.DevAllowAuth {
		return Config{}, fmt.Errorf("PLACEMENT_ENGINE_JWT_SECRET required unless PLACEMENT_ENGINE_DEV_ALLOW_LOCAL is set")
	}
	if (cfg.FallbackBucket == "") != (cfg.FallbackKey == "") {
		return Config{}, fmt.Errorf("PLACEMENT_ENGINE_FALLBACK_S3_BUCKET and PLACEMENT_ENGINE_FALLBACK_S3_KEY must be set together")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
