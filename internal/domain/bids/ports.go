package bids

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/openlot/arbiter/internal/domain/auctions"
	"github.com/openlot/arbiter/pkg/events"
)

// BidRepository defines the interface for bid persistence
type BidRepository interface {
	// SaveBid saves a bid within a transaction
	SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// GetBidByID retrieves a bid by its ID
	GetBidByID(ctx context.Context, bidID uuid.UUID) (*Bid, error)

	// ListBidsByAuctionID retrieves bids for an auction, newest first
	ListBidsByAuctionID(ctx context.Context, auctionID uuid.UUID, limit, offset int) ([]*Bid, error)
}

// AuctionRepository is the slice of auction persistence the arbitration
// engine needs
type AuctionRepository interface {
	// GetAuctionByID retrieves an auction (non-transactional read)
	GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error)

	// GetAuctionByIDForUpdate retrieves an auction and locks its row,
	// serializing concurrent bids for the same auction. Must be called
	// within a transaction.
	GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error)

	// SetHighestBid conditionally records a new highest bid: the update
	// applies only if amount is strictly greater than the stored value.
	// Returns ErrHighestBidStale when the condition fails.
	SetHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount decimal.Decimal, bidderID uuid.UUID) error
}

// HighestBidCache is the ephemeral highest-bid projection. It may be empty,
// stale or unavailable; every read is a hint and every failure degrades to
// the durable store.
type HighestBidCache interface {
	// GetHighestBid returns the cached highest bid and bidder for an
	// auction. ok is false on a miss.
	GetHighestBid(ctx context.Context, auctionID uuid.UUID) (amount decimal.Decimal, bidderID uuid.UUID, ok bool, err error)

	// SetHighestBid records the new highest bid. Best-effort: callers
	// tolerate failure.
	SetHighestBid(ctx context.Context, auctionID uuid.UUID, amount decimal.Decimal, bidderID uuid.UUID) error
}

// OutboxRepository persists accepted-bid events in the commit transaction
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
