package notifications

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification
type Type string

const (
	TypeNewBid       Type = "new_bid"
	TypeOutbid       Type = "outbid"
	TypeStatusChange Type = "status_change"
	TypeAuctionWon   Type = "auction_won"
)

// Notification represents a durable per-user notification row. Created by
// the fanout stage; only the recipient mutates it, by marking it read.
type Notification struct {
	ID        uuid.UUID  `db:"id"`
	UserID    uuid.UUID  `db:"user_id"`
	AuctionID *uuid.UUID `db:"auction_id"`
	Type      Type       `db:"type"`
	Message   string     `db:"message"`
	Read      bool       `db:"read"`
	CreatedAt time.Time  `db:"created_at"`
}
