package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr                  string
	DatabaseURL           string
	CallbackSigningKey    string
	RuleTablePath         string
	TemplateCatalogPath   string
	OperatorDirectoryPath string

	Redis   RedisConfig
	Gateway GatewayConfig
	Worker  WorkerConfig
	Kafka   KafkaConfig
}

// RedisConfig holds connection settings for the callback dedup window.
// An empty URL means Redis is not configured and the in-memory deduper is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// GatewayConfig points at the external message delivery gateway.
// An empty BaseURL selects the stub gateway (local development).
type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// WorkerConfig tunes the outbound delivery worker.
type WorkerConfig struct {
	BatchSize    int
	MaxRetries   int
	BackoffBase  time.Duration
	RatePerSec   int
	PollInterval time.Duration
}

// KafkaConfig holds the delivery-event stream settings. Empty brokers means
// events stay local (no-op publisher).
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:                  envOr("NOTIFY_CORE_ADDR", ":8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		CallbackSigningKey:    envOr("CALLBACK_SIGNING_KEY", "dev-secret-key-change-in-production"),
		RuleTablePath:         os.Getenv("RULE_TABLE_PATH"),
		TemplateCatalogPath:   os.Getenv("TEMPLATE_CATALOG_PATH"),
		OperatorDirectoryPath: os.Getenv("OPERATOR_DIRECTORY_PATH"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Gateway: GatewayConfig{
			BaseURL: os.Getenv("GATEWAY_BASE_URL"),
			APIKey:  os.Getenv("GATEWAY_API_KEY"),
			Timeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			BatchSize:    envInt("WORKER_BATCH_SIZE", 10),
			MaxRetries:   envInt("WORKER_MAX_RETRIES", 3),
			BackoffBase:  time.Second,
			RatePerSec:   envInt("WORKER_RATE_PER_SEC", 10),
			PollInterval: 2 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_DELIVERY_TOPIC", "delivery-events"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
