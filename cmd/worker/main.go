package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mkellner/hammer/internal/adapters/database"
	"github.com/mkellner/hammer/internal/adapters/schedule"
	"github.com/mkellner/hammer/internal/auction"
	"github.com/mkellner/hammer/internal/config"
	"github.com/mkellner/hammer/internal/scheduler"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down worker...")
		cancel()
	}()

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

	// 3. Connect to Redis (optional; the DB sweep settles without it)
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

	// 4. Initialize Repositories and Services
	txManager := pkgdb.NewPostgresTransactionManager(pool, cfg.DB.StatementTimeout)
	listingRepo := database.NewPostgresListingRepository(pool)
	bidRepo := database.NewPostgresBidRepository(pool)
	historyRepo := database.NewPostgresHistoryRepository(pool)
	orderRepo := database.NewPostgresOrderRepository(pool)
	outboxRepo := database.NewPostgresOutboxRepository(pool)

	settlementService := auction.NewSettlementService(
		txManager, listingRepo, bidRepo, historyRepo, orderRepo, outboxRepo,
		endSchedule, cfg.Auction.PaymentDueIn, logger)

	outboxRelay := pkgevents.NewOutboxRelay(
		outboxRepo,
		rabbitPublisher,
		txManager,
		cfg.Outbox.BatchSize,
		cfg.Outbox.PollInterval,
		cfg.Rabbit.Exchange,
		logger,
	)

	sweep := scheduler.New(
		settlementService,
		listingRepo,
		endSchedule,
		cfg.Scheduler.SweepInterval,
		cfg.Scheduler.SyncInterval,
		cfg.Scheduler.SyncHorizon,
		cfg.Scheduler.BatchSize,
		logger,
	)

	// 5. Run relay and settlement sweep until shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting Outbox Relay...")
		return outboxRelay.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting Settlement Scheduler...")
		return sweep.Run(gctx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker stopped")
}
