// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        // e.g. ":8080"
	ReadTimeout  time.Duration // default 10s
	WriteTimeout time.Duration // default 10s
}

// DBConfig holds PostgreSQL settings.
type DBConfig struct {
	URL              string        // full postgres URL, required
	StatementTimeout time.Duration // per-transaction statement timeout, default 5s
}

// RabbitConfig holds RabbitMQ settings.
type RabbitConfig struct {
	URL      string // required for processes that publish events
	Exchange string // default "auction.events"
}

// RedisConfig holds redis settings for the end-time schedule.
type RedisConfig struct {
	Addr string // empty disables the schedule; the DB sweep still settles
}

// AuctionConfig holds the bidding and settlement knobs.
type AuctionConfig struct {
	RetryMaxAttempts   int           // default 3
	RetryBaseDelay     time.Duration // default 20ms
	RetryMaxJitter     time.Duration // default 80ms
	DuplicateBidWindow time.Duration // default 5m
	PaymentDueIn       time.Duration // default 168h (7 days)
}

// SchedulerConfig holds the settlement worker cadence.
type SchedulerConfig struct {
	SweepInterval time.Duration // default 5s
	SyncInterval  time.Duration // default 1m
	SyncHorizon   time.Duration // default 15m
	BatchSize     int           // default 100
}

// OutboxConfig holds the event relay cadence.
type OutboxConfig struct {
	BatchSize    int           // default 10
	PollInterval time.Duration // default 1s
}

// Config is the root configuration for the auction engine.
type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Rabbit    RabbitConfig
	Redis     RedisConfig
	Auction   AuctionConfig
	Scheduler SchedulerConfig
	Outbox    OutboxConfig
}

// Load reads configuration from the environment, applying defaults. Only the
// database URL is strictly required.
func Load() (*Config, error) {
	cfg := &Config{}

	readTimeout, err := getDuration("SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SERVER_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SERVER_WRITE_TIMEOUT: %w", err)
	}
	cfg.Server = ServerConfig{
		Addr:         getEnv("SERVER_ADDR", ":8080"),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	dbURL := os.Getenv("AUCTION_DB_URL")
	if dbURL == "" {
		return nil, errors.New("AUCTION_DB_URL is not set")
	}
	stmtTimeout, err := getDuration("DB_STATEMENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DB_STATEMENT_TIMEOUT: %w", err)
	}
	cfg.DB = DBConfig{
		URL:              dbURL,
		StatementTimeout: stmtTimeout,
	}

	cfg.Rabbit = RabbitConfig{
		URL:      os.Getenv("RABBITMQ_URL"),
		Exchange: getEnv("RABBITMQ_EXCHANGE", "auction.events"),
	}

	cfg.Redis = RedisConfig{
		Addr: os.Getenv("REDIS_URL"),
	}

	retryAttempts, err := getInt("BID_RETRY_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("BID_RETRY_MAX_ATTEMPTS: %w", err)
	}
	retryBase, err := getDuration("BID_RETRY_BASE_DELAY", 20*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("BID_RETRY_BASE_DELAY: %w", err)
	}
	retryJitter, err := getDuration("BID_RETRY_MAX_JITTER", 80*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("BID_RETRY_MAX_JITTER: %w", err)
	}
	duplicateWindow, err := getDuration("BID_DUPLICATE_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("BID_DUPLICATE_WINDOW: %w", err)
	}
	paymentDueIn, err := getDuration("ORDER_PAYMENT_DUE_IN", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("ORDER_PAYMENT_DUE_IN: %w", err)
	}
	cfg.Auction = AuctionConfig{
		RetryMaxAttempts:   retryAttempts,
		RetryBaseDelay:     retryBase,
		RetryMaxJitter:     retryJitter,
		DuplicateBidWindow: duplicateWindow,
		PaymentDueIn:       paymentDueIn,
	}

	batchSize, err := getInt("SCHEDULER_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_BATCH_SIZE: %w", err)
	}
	sweepInterval, err := getDuration("SCHEDULER_SWEEP_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_SWEEP_INTERVAL: %w", err)
	}
	syncInterval, err := getDuration("SCHEDULER_SYNC_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_SYNC_INTERVAL: %w", err)
	}
	syncHorizon, err := getDuration("SCHEDULER_SYNC_HORIZON", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_SYNC_HORIZON: %w", err)
	}
	cfg.Scheduler = SchedulerConfig{
		SweepInterval: sweepInterval,
		SyncInterval:  syncInterval,
		SyncHorizon:   syncHorizon,
		BatchSize:     batchSize,
	}

	outboxBatch, err := getInt("OUTBOX_BATCH_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("OUTBOX_BATCH_SIZE: %w", err)
	}
	pollInterval, err := getDuration("OUTBOX_POLL_INTERVAL", time.Second)
	if err != nil {
		return nil, fmt.Errorf("OUTBOX_POLL_INTERVAL: %w", err)
	}
	cfg.Outbox = OutboxConfig{
		BatchSize:    outboxBatch,
		PollInterval: pollInterval,
	}

	if cfg.Auction.RetryMaxAttempts < 1 {
		return nil, errors.New("BID_RETRY_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}
