package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"

	PolicyRandom     = "random"
	PolicyRoundRobin = "round_robin"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	GatewayPort string

	StoreBackend     string
	DatabaseURL      string
	DBMaxConns       int
	RedisURL         string
	RedisKeyPrefix   string
	BadgerDir        string
	BadgerMaxRetries int

	NATSURL     string
	QueueNames  []string
	QueuePolicy string

	BatchConcurrency int
	BatchCoalesce    bool

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RequestTimeout     time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Binary specific requirements are checked by ValidateAPI and ValidateGateway.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "3000"),
		GatewayPort: getEnv("GATEWAY_PORT", getEnv("PORT", "3000")),

		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBMaxConns:       getEnvInt("DB_MAX_CONNS", 10),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "page_views"),
		BadgerDir:        getEnv("BADGER_DIR", "./data/badger"),
		BadgerMaxRetries: getEnvInt("BADGER_MAX_RETRIES", 10),

		NATSURL:     getEnv("NATS_URL", "nats://localhost:4222"),
		QueuePolicy: strings.ToLower(getEnv("QUEUE_POLICY", PolicyRandom)),

		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 8),
		BatchCoalesce:    getEnvBool("BATCH_COALESCE", false),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RequestTimeout:     time.Second * time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	queues, err := queueNames(
		os.Getenv("QUEUE_NAMES"),
		getEnv("QUEUE_PREFIX", "page_views"),
		getEnvInt("QUEUE_COUNT", 4),
	)
	if err != nil {
		return nil, err
	}
	cfg.QueueNames = queues

	if cfg.BatchConcurrency < 1 {
		return nil, fmt.Errorf("BATCH_CONCURRENCY must be at least 1")
	}

	return cfg, nil
}

// ValidateAPI checks the settings needed by the direct aggregation service.
func (c *Config) ValidateAPI() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required")
		}
	case BackendBadger:
		if c.BadgerDir == "" {
			return fmt.Errorf("BADGER_DIR is required")
		}
		if c.BadgerMaxRetries < 1 {
			return fmt.Errorf("BADGER_MAX_RETRIES must be at least 1")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	return nil
}

// ValidateGateway checks the settings needed by the fan-out gateway.
func (c *Config) ValidateGateway() error {
	if c.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required")
	}
	if len(c.QueueNames) == 0 {
		return fmt.Errorf("at least one queue is required")
	}
	switch c.QueuePolicy {
	case PolicyRandom, PolicyRoundRobin:
	default:
		return fmt.Errorf("unsupported QUEUE_POLICY %q", c.QueuePolicy)
	}
	return nil
}

// queueNames returns the explicit list when given, otherwise prefix1..prefixN.
func queueNames(explicit, prefix string, count int) ([]string, error) {
	if names := splitList(explicit); len(names) > 0 {
		seen := make(map[string]struct{}, len(names))
		for _, n := range names {
			if _, dup := seen[n]; dup {
				return nil, fmt.Errorf("QUEUE_NAMES contains %q twice", n)
			}
			seen[n] = struct{}{}
		}
		return names, nil
	}
	if count < 1 {
		return nil, fmt.Errorf("QUEUE_COUNT must be at least 1")
	}
	names := make([]string, count)
	for i := range names {
		names[i] = prefix + strconv.Itoa(i+1)
	}
	return names, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
