package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rabbitmq/amqp091-go"

	infradb "github.com/openlot/arbiter/internal/adapters/database"
	infraevents "github.com/openlot/arbiter/internal/adapters/events"
	"github.com/openlot/arbiter/internal/config"
	"github.com/openlot/arbiter/pkg/database"
	"github.com/openlot/arbiter/pkg/events"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down relay...")
		cancel()
	}()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Postgres Connected")

	amqpConn, err := amqp091.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer amqpConn.Close()

	publisher, err := infraevents.NewRabbitMQPublisher(amqpConn)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()
	logger.Info("RabbitMQ Connected")

	txManager := database.NewPostgresTransactionManager(pool, cfg.LockTimeout)
	outboxRepo := infradb.NewPostgresOutboxRepository(pool)

	relay := events.NewOutboxRelay(
		outboxRepo,
		publisher,
		txManager,
		cfg.OutboxBatch,
		cfg.OutboxInterval,
		infraevents.DomainExchange,
		logger,
	)

	logger.Info("Starting Outbox Relay...")
	if err := relay.Run(ctx); err != nil {
		logger.Error("Relay failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Relay stopped")
}
