package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisHighestBidCache implements the highest-bid cache on Redis. It is a
// disposable projection of the latest accepted bid: a miss, a stale value or
// an unreachable server all degrade to the durable store.
type RedisHighestBidCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client and verifies connectivity
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisHighestBidCache creates a new highest-bid cache.
// ttl = 0 keeps entries until overwritten.
func NewRedisHighestBidCache(client *redis.Client, ttl time.Duration) *RedisHighestBidCache {
	return &RedisHighestBidCache{client: client, ttl: ttl}
}

func amountKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:highest_bid", auctionID)
}

func bidderKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:highest_bidder", auctionID)
}

// GetHighestBid returns the cached highest bid and bidder for an auction.
// ok is false on a miss; both keys must be present and parseable for the
// hint to count, otherwise it is treated as a miss.
func (c *RedisHighestBidCache) GetHighestBid(ctx context.Context, auctionID uuid.UUID) (decimal.Decimal, uuid.UUID, bool, error) {
	vals, err := c.client.MGet(ctx, amountKey(auctionID), bidderKey(auctionID)).Result()
	if err != nil {
		return decimal.Zero, uuid.Nil, false, fmt.Errorf("failed to read highest bid from redis: %w", err)
	}

	rawAmount, okAmount := vals[0].(string)
	rawBidder, okBidder := vals[1].(string)
	if !okAmount || !okBidder {
		return decimal.Zero, uuid.Nil, false, nil
	}

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return decimal.Zero, uuid.Nil, false, nil
	}
	bidderID, err := uuid.Parse(rawBidder)
	if err != nil {
		return decimal.Zero, uuid.Nil, false, nil
	}

	return amount, bidderID, true, nil
}

// InvalidateHighestBid removes an auction's cache entries. The closer
// worker calls this for ended auctions so stale hints stop circulating.
func (c *RedisHighestBidCache) InvalidateHighestBid(ctx context.Context, auctionID uuid.UUID) error {
	if err := c.client.Del(ctx, amountKey(auctionID), bidderKey(auctionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete highest bid from redis: %w", err)
	}
	return nil
}

// SetHighestBid records the new highest bid and bidder. Both keys are
// written in one round trip so readers never see a half-updated pair.
func (c *RedisHighestBidCache) SetHighestBid(ctx context.Context, auctionID uuid.UUID, amount decimal.Decimal, bidderID uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, amountKey(auctionID), amount.String(), c.ttl)
	pipe.Set(ctx, bidderKey(auctionID), bidderID.String(), c.ttl)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to write highest bid to redis: %w", err)
	}
	return nil
}
