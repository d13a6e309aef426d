package bids

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid represents an accepted auction bid. Bids are append-only; they are
// never mutated or deleted once committed.
type Bid struct {
	ID        uuid.UUID       `db:"id"`
	AuctionID uuid.UUID       `db:"auction_id"`
	BidderID  uuid.UUID       `db:"bidder_id"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// PlaceBidCommand represents the command to place a bid
type PlaceBidCommand struct {
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Amount    decimal.Decimal
}

// Acceptance is the outcome of a successfully arbitrated bid. The previous
// highest bidder (nil on a first bid) is carried for the notification fanout.
type Acceptance struct {
	Bid              *Bid
	PreviousBidderID *uuid.UUID
}

// ListBidsQuery represents pagination parameters for a bid history read
type ListBidsQuery struct {
	AuctionID uuid.UUID
	Limit     int
	Offset    int
}

// EventTypeBidAccepted is the routing key for accepted-bid events
const EventTypeBidAccepted = "bid.accepted"

// BidAcceptedEvent is the payload of a bid.accepted outbox event. It carries
// everything the fanout stage needs so no store reads happen on that path.
type BidAcceptedEvent struct {
	BidID            uuid.UUID       `json:"bid_id"`
	AuctionID        uuid.UUID       `json:"auction_id"`
	BidderID         uuid.UUID       `json:"bidder_id"`
	SellerID         uuid.UUID       `json:"seller_id"`
	ItemName         string          `json:"item_name"`
	Amount           decimal.Decimal `json:"amount"`
	PreviousBidderID *uuid.UUID      `json:"previous_bidder_id,omitempty"`
	AcceptedAt       time.Time       `json:"accepted_at"`
}
