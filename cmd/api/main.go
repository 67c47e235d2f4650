package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/mkellner/hammer/internal/adapters/api"
	"github.com/mkellner/hammer/internal/adapters/database"
	"github.com/mkellner/hammer/internal/adapters/schedule"
	"github.com/mkellner/hammer/internal/auction"
	"github.com/mkellner/hammer/internal/config"
	pkgdb "github.com/mkellner/hammer/pkg/database"
	pkgevents "github.com/mkellner/hammer/pkg/events"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load environment variables (local overrides .env)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// 1. Initialize Postgres Connection Pool
	dbConfig, err := pgxpool.ParseConfig(cfg.DB.URL)
	if err != nil {
		logger.Error("Unable to parse database config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Error("Unable to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if pingErr := pool.Ping(ctx); pingErr != nil {
		logger.Error("Unable to ping database", "error", pingErr)
		os.Exit(1)
	}
	logger.Info("Postgres Connected")

	// 2. Connect to RabbitMQ
	if cfg.Rabbit.URL == "" {
		logger.Error("RABBITMQ_URL is not set")
		os.Exit(1)
	}
	amqpConn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()
	logger.Info("RabbitMQ Connected")

	rabbitPublisher, err := pkgevents.NewRabbitMQPublisher(amqpConn, cfg.Rabbit.Exchange)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer rabbitPublisher.Close()

	// 3. Connect to Redis (end-time schedule; the worker still settles
	// without it, so a failure only degrades trigger latency)
	var endSchedule auction.EndSchedule
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis connection failed, end-time schedule disabled", "error", err)
		} else {
			endSchedule = schedule.NewRedisEndSchedule(rdb, schedule.DefaultKey)
			logger.Info("Redis Connected")
		}
	}

	// 4. Initialize Repositories (Infrastructure Layer)
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.DB.StatementTimeout)
	listingRepo := database.NewPostgresListingRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	profileRepo := database.NewPostgresBuyerProfileRepository(pool)
	historyRepo := database.NewPostgresHistoryRepository(pool)
	orderRepo := database.NewPostgresOrderRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	// 5. Initialize Services (Domain Layer)
	placementService := auction.NewService(
		txManager, listingRepo, bidRepo, profileRepo, historyRepo, orderRepo, outboxRepo,
		cfg.Auction.DuplicateBidWindow, cfg.Auction.PaymentDueIn)
	retry := auction.NewRetryController(
		cfg.Auction.RetryMaxAttempts, cfg.Auction.RetryBaseDelay, cfg.Auction.RetryMaxJitter, logger)
	pipeline := auction.NewPlacementPipeline(placementService, retry)
	settlementService := auction.NewSettlementService(
		txManager, listingRepo, bidRepo, historyRepo, orderRepo, outboxRepo,
		endSchedule, cfg.Auction.PaymentDueIn, logger)

	// 6. Start Outbox Relay
	outboxRelay := pkgevents.NewOutboxRelay(
		outboxRepo,
		rabbitPublisher,
		txManager,
		cfg.Outbox.BatchSize,
		cfg.Outbox.PollInterval,
		cfg.Rabbit.Exchange,
		logger,
	)
	go func() {
		logger.Info("Starting Outbox Relay...")
		if err := outboxRelay.Run(ctx); err != nil {
			logger.Error("Outbox Relay stopped", "error", err)
		}
	}()

	// 7. Start Server
	handler := api.NewAuctionHandler(pipeline, settlementService, bidRepo, historyRepo, logger)
	router := api.NewRouter(handler, logger)

	logger.Info("Starting Auction Engine API", "addr", cfg.Server.Addr)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
