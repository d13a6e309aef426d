package auctions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/openlot/arbiter/pkg/database"
	"github.com/openlot/arbiter/pkg/events"
)

// Service errors
var (
	ErrInvalidItemName      = fmt.Errorf("item name must not be empty")
	ErrInvalidStartingPrice = fmt.Errorf("starting price must be greater than 0")
	ErrInvalidBidIncrement  = fmt.Errorf("bid increment must be greater than 0")
	ErrInvalidDuration      = fmt.Errorf("duration must be at least one hour")
	ErrAuctionNotFound      = fmt.Errorf("auction not found")
	ErrUnauthorized         = fmt.Errorf("unauthorized: only the seller or an admin can perform this action")
	ErrInvalidTransition    = fmt.Errorf("invalid status transition")
	ErrUnknownStatus        = fmt.Errorf("unknown status")
)

// CreateAuctionCommand represents the command to create a new auction
type CreateAuctionCommand struct {
	SellerID      uuid.UUID
	ItemName      string
	Description   string
	StartingPrice decimal.Decimal
	BidIncrement  decimal.Decimal
	GoLiveTime    time.Time
	DurationHours int
}

// SetStatusCommand represents a manual status override by the seller or an admin
type SetStatusCommand struct {
	AuctionID   uuid.UUID
	RequesterID uuid.UUID
	IsAdmin     bool
	NewStatus   Status
}

// ListAuctionsQuery represents pagination and filtering for listing auctions
type ListAuctionsQuery struct {
	Status *Status
	Limit  int
	Offset int
}

// Service implements auction lifecycle management
type Service struct {
	repo       Repository
	txManager  database.TransactionManager
	outboxRepo OutboxRepository
	cache      HighestBidCache
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a new auction service
func NewService(
	repo Repository,
	txManager database.TransactionManager,
	outboxRepo OutboxRepository,
	cache HighestBidCache,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:       repo,
		txManager:  txManager,
		outboxRepo: outboxRepo,
		cache:      cache,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateAuction creates a new auction listing
func (s *Service) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (*Auction, error) {
	if cmd.ItemName == "" {
		return nil, ErrInvalidItemName
	}
	if !cmd.StartingPrice.IsPositive() {
		return nil, ErrInvalidStartingPrice
	}
	// A non-positive increment would allow two bids of equal amount to both
	// pass validation, so it is rejected up front.
	if !cmd.BidIncrement.IsPositive() {
		return nil, ErrInvalidBidIncrement
	}
	if cmd.DurationHours <= 0 {
		return nil, ErrInvalidDuration
	}

	now := s.now()
	auction := &Auction{
		ID:                uuid.New(),
		SellerID:          cmd.SellerID,
		ItemName:          cmd.ItemName,
		Description:       cmd.Description,
		StartingPrice:     cmd.StartingPrice,
		BidIncrement:      cmd.BidIncrement,
		GoLiveTime:        cmd.GoLiveTime,
		DurationHours:     cmd.DurationHours,
		Status:            StatusUpcoming,
		CurrentHighestBid: cmd.StartingPrice,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	return auction, nil
}

// GetAuction retrieves an auction. The highest bid is overlaid with the
// cached value when one is present, since the cache typically runs ahead of
// replicated reads. The store remains authoritative on divergence downward.
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	auction, err := s.repo.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, ErrAuctionNotFound
	}

	amount, bidderID, ok, err := s.cache.GetHighestBid(ctx, auctionID)
	if err != nil {
		s.logger.Warn("highest-bid cache read failed, serving store value", "auction_id", auctionID, "error", err)
		return auction, nil
	}
	if ok && amount.GreaterThan(auction.CurrentHighestBid) {
		auction.CurrentHighestBid = amount
		auction.WinnerID = &bidderID
	}

	return auction, nil
}

// ListAuctions retrieves auctions with pagination
func (s *Service) ListAuctions(ctx context.Context, query ListAuctionsQuery) ([]*Auction, error) {
	if query.Limit <= 0 {
		query.Limit = 20
	}
	result, err := s.repo.ListAuctions(ctx, query.Status, query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	return result, nil
}

// Classify derives the lifecycle state of an auction at the given instant
func (s *Service) Classify(auction *Auction, now time.Time) Status {
	return auction.Classify(now)
}

// SetStatus applies a manual status override. The requester must be the
// seller or an admin, and the transition must move forward in the lifecycle.
// The status change and its outbox event commit atomically.
func (s *Service) SetStatus(ctx context.Context, cmd SetStatusCommand) (*Auction, error) {
	if !cmd.NewStatus.IsValid() {
		return nil, ErrUnknownStatus
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, ErrAuctionNotFound
	}

	if !auction.IsOwnedBy(cmd.RequesterID) && !cmd.IsAdmin {
		return nil, ErrUnauthorized
	}

	now := s.now()
	oldStatus := auction.Classify(now)
	if !auction.CanTransitionTo(cmd.NewStatus, now) {
		return nil, ErrInvalidTransition
	}

	if err := s.repo.UpdateStatus(ctx, tx, cmd.AuctionID, cmd.NewStatus); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	if err := s.saveStatusEvent(ctx, tx, auction, oldStatus, cmd.NewStatus, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auction.Status = cmd.NewStatus
	auction.UpdatedAt = now
	return auction, nil
}

// CloseExpired persists the 'ended' status for auctions whose time window
// has closed, emitting a status_changed event per auction. Runs from the
// closer worker; each auction commits independently so one failure does not
// hold back the rest of the batch. Returns the auctions closed in this pass.
func (s *Service) CloseExpired(ctx context.Context, limit int) ([]*Auction, error) {
	now := s.now()
	expired, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired auctions: %w", err)
	}

	closed := make([]*Auction, 0, len(expired))
	for _, candidate := range expired {
		auction, err := s.closeOne(ctx, candidate.ID, now)
		if err != nil {
			s.logger.Error("failed to close expired auction", "auction_id", candidate.ID, "error", err)
			continue
		}
		if auction != nil {
			closed = append(closed, auction)
		}
	}
	return closed, nil
}

// closeOne ends a single expired auction. Returns (nil, nil) when another
// writer got there first.
func (s *Service) closeOne(ctx context.Context, auctionID uuid.UUID, now time.Time) (*Auction, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetAuctionByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock auction: %w", err)
	}

	// A concurrent closer or a manual close may have ended it already.
	if auction.Status == StatusEnded {
		return nil, nil
	}
	// The persisted status, not Classify: the window has already elapsed.
	oldStatus := auction.Status

	if err := s.repo.UpdateStatus(ctx, tx, auctionID, StatusEnded); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if err := s.saveStatusEvent(ctx, tx, auction, oldStatus, StatusEnded, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auction.Status = StatusEnded
	auction.UpdatedAt = now
	return auction, nil
}

func (s *Service) saveStatusEvent(ctx context.Context, tx pgx.Tx, auction *Auction, oldStatus, newStatus Status, now time.Time) error {
	payload, err := json.Marshal(StatusChangedEvent{
		AuctionID:   auction.ID,
		SellerID:    auction.SellerID,
		ItemName:    auction.ItemName,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		WinnerID:    auction.WinnerID,
		FinalAmount: auction.CurrentHighestBid,
		ChangedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeStatusChanged,
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: now,
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}
