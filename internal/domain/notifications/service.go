package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/arbiter/internal/domain/auctions"
	"github.com/openlot/arbiter/internal/domain/bids"
)

// Service errors
var (
	ErrNotificationNotFound = fmt.Errorf("notification not found")
)

// AuctionTopic is the shared broadcast topic for everyone watching an auction
func AuctionTopic(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}

// UserTopic is a user's personal broadcast topic
func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// UserEvent is the payload pushed to a user's personal topic
type UserEvent struct {
	Event     string    `json:"event"`
	Type      Type      `json:"type"`
	AuctionID uuid.UUID `json:"auction_id"`
	Message   string    `json:"message"`
}

// NewBidEvent is the payload pushed to an auction's shared topic so viewers
// can render the bid history live
type NewBidEvent struct {
	Event     string          `json:"event"`
	AuctionID uuid.UUID       `json:"auction_id"`
	BidderID  uuid.UUID       `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// StatusEvent is the payload pushed to an auction's shared topic on a
// lifecycle change
type StatusEvent struct {
	Event     string          `json:"event"`
	AuctionID uuid.UUID       `json:"auction_id"`
	Status    auctions.Status `json:"status"`
}

// ListNotificationsQuery represents pagination for a user's notifications
type ListNotificationsQuery struct {
	UserID uuid.UUID
	Limit  int
	Offset int
}

// Service turns accepted-bid and status-change events into durable
// notification rows and realtime broadcasts. It runs downstream of the
// arbitration engine and never influences bid outcomes: row-insert failures
// propagate so the consumer can retry the event, broadcast failures are
// logged and dropped.
type Service struct {
	repo        Repository
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new notification service
func NewService(repo Repository, broadcaster Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ProcessBidAccepted fans an accepted bid out to the outbid bidder, the
// seller and the auction's shared topic
func (s *Service) ProcessBidAccepted(ctx context.Context, event bids.BidAcceptedEvent) error {
	amount := event.Amount.StringFixed(2)

	// Outbid notice for the previous highest bidder, unless they just
	// raised their own bid.
	if prev := event.PreviousBidderID; prev != nil && *prev != event.BidderID {
		outbid := &Notification{
			ID:        uuid.New(),
			UserID:    *prev,
			AuctionID: &event.AuctionID,
			Type:      TypeOutbid,
			Message:   fmt.Sprintf("You have been outbid on %q. New highest bid: $%s", event.ItemName, amount),
			CreatedAt: s.now(),
		}
		if err := s.repo.SaveNotification(ctx, outbid); err != nil {
			return fmt.Errorf("failed to save outbid notification: %w", err)
		}
		s.broadcast(ctx, UserTopic(*prev), UserEvent{
			Event:     "notification",
			Type:      TypeOutbid,
			AuctionID: event.AuctionID,
			Message:   outbid.Message,
		})
	}

	newBid := &Notification{
		ID:        uuid.New(),
		UserID:    event.SellerID,
		AuctionID: &event.AuctionID,
		Type:      TypeNewBid,
		Message:   fmt.Sprintf("New bid of $%s placed on %q", amount, event.ItemName),
		CreatedAt: s.now(),
	}
	if err := s.repo.SaveNotification(ctx, newBid); err != nil {
		return fmt.Errorf("failed to save new-bid notification: %w", err)
	}
	s.broadcast(ctx, UserTopic(event.SellerID), UserEvent{
		Event:     "notification",
		Type:      TypeNewBid,
		AuctionID: event.AuctionID,
		Message:   newBid.Message,
	})

	s.broadcast(ctx, AuctionTopic(event.AuctionID), NewBidEvent{
		Event:     "new-bid",
		AuctionID: event.AuctionID,
		BidderID:  event.BidderID,
		Amount:    event.Amount,
		Timestamp: event.AcceptedAt,
	})

	return nil
}

// ProcessStatusChanged records the lifecycle change for the seller,
// announces it on the auction's shared topic and, when the auction ended
// with a winner, congratulates the winning bidder
func (s *Service) ProcessStatusChanged(ctx context.Context, event auctions.StatusChangedEvent) error {
	notification := &Notification{
		ID:        uuid.New(),
		UserID:    event.SellerID,
		AuctionID: &event.AuctionID,
		Type:      TypeStatusChange,
		Message:   fmt.Sprintf("Auction %q is now %s", event.ItemName, event.NewStatus),
		CreatedAt: s.now(),
	}
	if err := s.repo.SaveNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to save status-change notification: %w", err)
	}

	s.broadcast(ctx, UserTopic(event.SellerID), UserEvent{
		Event:     "notification",
		Type:      TypeStatusChange,
		AuctionID: event.AuctionID,
		Message:   notification.Message,
	})

	if event.NewStatus == auctions.StatusEnded && event.WinnerID != nil {
		won := &Notification{
			ID:        uuid.New(),
			UserID:    *event.WinnerID,
			AuctionID: &event.AuctionID,
			Type:      TypeAuctionWon,
			Message:   fmt.Sprintf("You won %q with a bid of $%s", event.ItemName, event.FinalAmount.StringFixed(2)),
			CreatedAt: s.now(),
		}
		if err := s.repo.SaveNotification(ctx, won); err != nil {
			return fmt.Errorf("failed to save auction-won notification: %w", err)
		}
		s.broadcast(ctx, UserTopic(*event.WinnerID), UserEvent{
			Event:     "notification",
			Type:      TypeAuctionWon,
			AuctionID: event.AuctionID,
			Message:   won.Message,
		})
	}
	s.broadcast(ctx, AuctionTopic(event.AuctionID), StatusEvent{
		Event:     "auction-status-changed",
		AuctionID: event.AuctionID,
		Status:    event.NewStatus,
	})

	return nil
}

// ListNotifications retrieves a user's notifications, newest first
func (s *Service) ListNotifications(ctx context.Context, query ListNotificationsQuery) ([]*Notification, error) {
	if query.Limit <= 0 {
		query.Limit = 20
	}
	result, err := s.repo.ListByUserID(ctx, query.UserID, query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return result, nil
}

// MarkRead marks a notification as read on behalf of its recipient
func (s *Service) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	return s.repo.MarkRead(ctx, notificationID, userID)
}

// broadcast publishes to the realtime channel; failures never propagate
func (s *Service) broadcast(ctx context.Context, topic string, event any) {
	if err := s.broadcaster.Broadcast(ctx, topic, event); err != nil {
		s.logger.Error("failed to broadcast event", "topic", topic, "error", err)
	}
}
