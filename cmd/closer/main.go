package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	infracache "github.com/openlot/arbiter/internal/adapters/cache"
	infradb "github.com/openlot/arbiter/internal/adapters/database"
	"github.com/openlot/arbiter/internal/config"
	"github.com/openlot/arbiter/internal/domain/auctions"
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
		logger.Info("Shutting down closer...")
		cancel()
	}()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Postgres Connected")

	redisClient, err := infracache.NewRedisClient(cfg.RedisAddr, "", cfg.RedisDB)
	if err != nil {
		logger.Error("Unable to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("Redis Connected")

	txManager := database.NewPostgresTransactionManager(pool, cfg.LockTimeout)
	auctionRepo := infradb.NewPostgresAuctionRepository(pool)
	outboxRepo := infradb.NewPostgresOutboxRepository(pool)
	cache := infracache.NewRedisHighestBidCache(redisClient, cfg.CacheTTL)
	service := auctions.NewService(auctionRepo, txManager, outboxRepo, cache, logger)

	logger.Info("Starting Auction Closer...", "interval", cfg.CloseInterval)

	ticker := time.NewTicker(cfg.CloseInterval)
	defer ticker.Stop()

	for {
		closeExpired(ctx, service, cache, cfg.CloseBatch, logger)

		select {
		case <-ctx.Done():
			logger.Info("Closer stopped")
			return
		case <-ticker.C:
		}
	}
}

func closeExpired(ctx context.Context, service *auctions.Service, cache *infracache.RedisHighestBidCache, batch int, logger *slog.Logger) {
	closed, err := service.CloseExpired(ctx, batch)
	if err != nil {
		logger.Error("Failed to close expired auctions", "error", err)
		return
	}

	for _, auction := range closed {
		logger.Info("Auction closed", "auction_id", auction.ID, "final_amount", auction.CurrentHighestBid)
		// The entry is only a hint; a failed delete expires with the TTL.
		if err := cache.InvalidateHighestBid(ctx, auction.ID); err != nil {
			logger.Warn("Failed to invalidate highest-bid cache", "auction_id", auction.ID, "error", err)
		}
	}
}
