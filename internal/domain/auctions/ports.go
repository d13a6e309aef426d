package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/openlot/arbiter/pkg/events"
)

// Repository defines the interface for auction persistence
type Repository interface {
	// CreateAuction creates a new auction listing
	CreateAuction(ctx context.Context, auction *Auction) error

	// GetAuctionByID retrieves an auction by its ID
	GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*Auction, error)

	// GetAuctionByIDForUpdate retrieves an auction and locks its row.
	// Must be called within a transaction.
	GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Auction, error)

	// UpdateStatus updates an auction's status within a transaction
	UpdateStatus(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, status Status) error

	// ListAuctions retrieves auctions with pagination, optionally filtered
	// by status (nil = all)
	ListAuctions(ctx context.Context, status *Status, limit, offset int) ([]*Auction, error)

	// ListExpired retrieves auctions whose time window has closed but whose
	// persisted status is not yet 'ended', oldest first
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Auction, error)
}

// HighestBidCache is a read-only view of the highest-bid cache used to
// overlay fresh values on auction reads. Values are hints only; the store
// remains authoritative.
type HighestBidCache interface {
	// GetHighestBid returns the cached highest bid and bidder for an
	// auction. ok is false on a miss or when the cache is unavailable.
	GetHighestBid(ctx context.Context, auctionID uuid.UUID) (amount decimal.Decimal, bidderID uuid.UUID, ok bool, err error)
}

// OutboxRepository persists domain events alongside the state change that
// produced them
type OutboxRepository interface {
	SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error
}
