package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultEnv             = "development"
	defaultHTTPHost        = "0.0.0.0"
	defaultHTTPPort        = 8080
	defaultRedisAddr       = "localhost:6379"
	defaultRedisDB         = 0
	defaultCacheTTLSeconds = 30

	defaultEventsExchange = "chat.events"
	defaultAuditExchange  = "dealdesk.audit"

	defaultGeneratorTimeoutSeconds = 20

	defaultOutboxIntervalSeconds   = 10
	defaultOutboxBatch             = 10
	defaultMessageGapSeconds       = 1
	defaultAssignIntervalSeconds   = 60
	defaultInitiateIntervalSeconds = 30
	defaultMergeWindowSeconds      = 4
)

// Config keeps the runtime configuration for the service.
type Config struct {
	Env       string
	HTTP      HTTPConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Rabbit    RabbitConfig
	Channel   ChannelConfig
	Generator GeneratorConfig
	Worker    WorkerConfig
	Cache     CacheConfig
}

// HTTPConfig holds HTTP server related settings.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr renders the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// PostgresConfig stores database connection parameters.
type PostgresConfig struct {
	DSN string
}

// RedisConfig stores Redis connection parameters.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitConfig stores message broker parameters.
type RabbitConfig struct {
	URL            string
	EventsExchange string
	AuditExchange  string
}

// ChannelConfig points at the external messaging gateway.
type ChannelConfig struct {
	GatewayURL string
}

// GeneratorConfig points at the draft generation service.
type GeneratorConfig struct {
	URL     string
	Timeout time.Duration
}

// WorkerConfig tunes the background loops.
type WorkerConfig struct {
	OutboxInterval   time.Duration
	OutboxBatch      int
	MessageGap       time.Duration
	AssignInterval   time.Duration
	InitiateInterval time.Duration
	MergeWindow      time.Duration
}

// CacheConfig stores cache behavior.
type CacheConfig struct {
	TTLSeconds int
}

// Load builds Config from environment variables.
func Load() (*Config, error) {
	host := getString("HTTP_HOST", defaultHTTPHost)
	port, err := getInt("HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("parse HTTP_PORT: %w", err)
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		return nil, errors.New("RABBITMQ_URL is required")
	}

	gatewayURL := os.Getenv("CHANNEL_GATEWAY_URL")
	if gatewayURL == "" {
		return nil, errors.New("CHANNEL_GATEWAY_URL is required")
	}

	redisDB, err := getInt("REDIS_DB", defaultRedisDB)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_DB: %w", err)
	}

	cacheTTL, err := getInt("CACHE_TTL_SECONDS", defaultCacheTTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("parse CACHE_TTL_SECONDS: %w", err)
	}

	generatorTimeout, err := getSeconds("GENERATOR_TIMEOUT_SECONDS", defaultGeneratorTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	worker, err := loadWorker()
	if err != nil {
		return nil, err
	}

	return &Config{
		Env:  getString("APP_ENV", defaultEnv),
		HTTP: HTTPConfig{Host: host, Port: port},
		Postgres: PostgresConfig{
			DSN: dsn,
		},
		Redis: RedisConfig{
			Addr:     getString("REDIS_ADDR", defaultRedisAddr),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Rabbit: RabbitConfig{
			URL:            rabbitURL,
			EventsExchange: getString("RABBITMQ_EVENTS_EXCHANGE", defaultEventsExchange),
			AuditExchange:  getString("RABBITMQ_AUDIT_EXCHANGE", defaultAuditExchange),
		},
		Channel: ChannelConfig{
			GatewayURL: gatewayURL,
		},
		Generator: GeneratorConfig{
			URL:     os.Getenv("GENERATOR_URL"),
			Timeout: generatorTimeout,
		},
		Worker: worker,
		Cache: CacheConfig{
			TTLSeconds: cacheTTL,
		},
	}, nil
}

func loadWorker() (WorkerConfig, error) {
	outboxInterval, err := getSeconds("OUTBOX_INTERVAL_SECONDS", defaultOutboxIntervalSeconds)
	if err != nil {
		return WorkerConfig{}, err
	}
	outboxBatch, err := getInt("OUTBOX_BATCH_SIZE", defaultOutboxBatch)
	if err != nil {
		return WorkerConfig{}, fmt.Errorf("parse OUTBOX_BATCH_SIZE: %w", err)
	}
	messageGap, err := getSeconds("OUTBOX_MESSAGE_GAP_SECONDS", defaultMessageGapSeconds)
	if err != nil {
		return WorkerConfig{}, err
	}
	assignInterval, err := getSeconds("ASSIGN_INTERVAL_SECONDS", defaultAssignIntervalSeconds)
	if err != nil {
		return WorkerConfig{}, err
	}
	initiateInterval, err := getSeconds("INITIATE_INTERVAL_SECONDS", defaultInitiateIntervalSeconds)
	if err != nil {
		return WorkerConfig{}, err
	}
	mergeWindow, err := getSeconds("INBOUND_MERGE_WINDOW_SECONDS", defaultMergeWindowSeconds)
	if err != nil {
		return WorkerConfig{}, err
	}

	return WorkerConfig{
		OutboxInterval:   outboxInterval,
		OutboxBatch:      outboxBatch,
		MessageGap:       messageGap,
		AssignInterval:   assignInterval,
		InitiateInterval: initiateInterval,
		MergeWindow:      mergeWindow,
	}, nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func getSeconds(key string, fallback int) (time.Duration, error) {
	seconds, err := getInt(key, fallback)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return time.Duration(seconds) * time.Second, nil
}
