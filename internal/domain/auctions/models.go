package auctions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of an auction.
// Transitions only move forward: upcoming -> active -> ended.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

// statusRank orders statuses for transition checks
var statusRank = map[Status]int{
	StatusUpcoming: 0,
	StatusActive:   1,
	StatusEnded:    2,
}

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Auction represents an auction listing
type Auction struct {
	ID                uuid.UUID       `db:"id"`
	SellerID          uuid.UUID       `db:"seller_id"`
	ItemName          string          `db:"item_name"`
	Description       string          `db:"description"`
	StartingPrice     decimal.Decimal `db:"starting_price"`
	BidIncrement      decimal.Decimal `db:"bid_increment"`
	GoLiveTime        time.Time       `db:"go_live_time"`
	DurationHours     int             `db:"duration_hours"`
	Status            Status          `db:"status"`
	CurrentHighestBid decimal.Decimal `db:"current_highest_bid"`
	WinnerID          *uuid.UUID      `db:"winner_id"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// EndTime returns the instant the auction closes
func (a *Auction) EndTime() time.Time {
	return a.GoLiveTime.Add(time.Duration(a.DurationHours) * time.Hour)
}

// Classify derives the lifecycle state at the given instant. A persisted
// 'ended' status (manual close) wins over the time window: once ended, an
// auction never becomes active again.
func (a *Auction) Classify(now time.Time) Status {
	if a.Status == StatusEnded {
		return StatusEnded
	}
	if now.Before(a.GoLiveTime) {
		return StatusUpcoming
	}
	// The window is [goLiveTime, endTime): a bid at exactly endTime is late.
	if now.Before(a.EndTime()) {
		return StatusActive
	}
	return StatusEnded
}

// MinimumBid returns the lowest acceptable next bid
func (a *Auction) MinimumBid() decimal.Decimal {
	return a.CurrentHighestBid.Add(a.BidIncrement)
}

// IsOwnedBy checks if the auction belongs to the given user
func (a *Auction) IsOwnedBy(userID uuid.UUID) bool {
	return a.SellerID == userID
}

// CanTransitionTo reports whether moving to the target status is a forward
// transition from the state derived at now
func (a *Auction) CanTransitionTo(target Status, now time.Time) bool {
	return statusRank[target] > statusRank[a.Classify(now)]
}

// StatusChangedEvent is the payload of an auction.status_changed outbox
// event. WinnerID and FinalAmount describe the auction at the moment of the
// change; the fanout uses them to announce the winner when an auction ends.
type StatusChangedEvent struct {
	AuctionID   uuid.UUID       `json:"auction_id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	ItemName    string          `json:"item_name"`
	OldStatus   Status          `json:"old_status"`
	NewStatus   Status          `json:"new_status"`
	WinnerID    *uuid.UUID      `json:"winner_id,omitempty"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	ChangedAt   time.Time       `json:"changed_at"`
}

// EventTypeStatusChanged is the routing key for status change events
const EventTypeStatusChanged = "auction.status_changed"
