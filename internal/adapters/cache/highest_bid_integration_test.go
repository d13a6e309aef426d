//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlot/arbiter/internal/adapters/cache"
	"github.com/openlot/arbiter/pkg/testhelpers"
)

func setupCache(t *testing.T, ttl time.Duration) *cache.RedisHighestBidCache {
	t.Helper()

	testRedis := testhelpers.NewTestRedis(t)
	t.Cleanup(testRedis.Close)

	client, err := cache.NewRedisClient(testRedis.Addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewRedisHighestBidCache(client, ttl)
}

func TestRedisHighestBidCache_RoundTrip(t *testing.T) {
	c := setupCache(t, time.Hour)
	ctx := context.Background()

	auctionID := uuid.New()
	bidderID := uuid.New()
	amount := decimal.RequireFromString("25.50")

	_, _, ok, err := c.GetHighestBid(ctx, auctionID)
	require.NoError(t, err)
	assert.False(t, ok, "unknown auction should be a miss")

	require.NoError(t, c.SetHighestBid(ctx, auctionID, amount, bidderID))

	got, gotBidder, ok, err := c.GetHighestBid(ctx, auctionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(amount))
	assert.Equal(t, bidderID, gotBidder)
}

func TestRedisHighestBidCache_OverwriteKeepsPairConsistent(t *testing.T) {
	c := setupCache(t, time.Hour)
	ctx := context.Background()

	auctionID := uuid.New()
	first := uuid.New()
	second := uuid.New()

	require.NoError(t, c.SetHighestBid(ctx, auctionID, decimal.RequireFromString("15.00"), first))
	require.NoError(t, c.SetHighestBid(ctx, auctionID, decimal.RequireFromString("20.00"), second))

	got, gotBidder, ok, err := c.GetHighestBid(ctx, auctionID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, second, gotBidder)
}

func TestRedisHighestBidCache_EntriesExpire(t *testing.T) {
	c := setupCache(t, time.Second)
	ctx := context.Background()

	auctionID := uuid.New()
	require.NoError(t, c.SetHighestBid(ctx, auctionID, decimal.RequireFromString("15.00"), uuid.New()))

	assert.Eventually(t, func() bool {
		_, _, ok, err := c.GetHighestBid(ctx, auctionID)
		return err == nil && !ok
	}, 3*time.Second, 200*time.Millisecond, "entry should expire after the ttl")
}
