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
	"github.com/openlot/arbiter/internal/domain/notifications"
	"github.com/openlot/arbiter/pkg/database"
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
		logger.Info("Shutting down fanout worker...")
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

	broadcaster, err := infraevents.NewRabbitMQPublisher(amqpConn)
	if err != nil {
		logger.Error("Failed to create RabbitMQ publisher", "error", err)
		os.Exit(1)
	}
	defer broadcaster.Close()
	logger.Info("RabbitMQ Connected")

	notificationRepo := infradb.NewPostgresNotificationRepository(pool)
	service := notifications.NewService(notificationRepo, broadcaster, logger)

	consumer := infraevents.NewFanoutConsumer(amqpConn, service, logger)

	logger.Info("Starting Notification Fanout...")
	if err := consumer.Run(ctx); err != nil {
		logger.Error("Fanout failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Fanout stopped")
}
