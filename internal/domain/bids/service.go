package bids

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot/arbiter/internal/domain/auctions"
	"github.com/openlot/arbiter/pkg/database"
	"github.com/openlot/arbiter/pkg/events"
)

// Validation errors. These are expected outcomes reported to the caller,
// never logged as faults.
var (
	ErrInvalidBidAmount = fmt.Errorf("bid amount must be positive")
	ErrAuctionNotFound  = fmt.Errorf("auction not found")
	ErrSellerCannotBid  = fmt.Errorf("seller cannot bid on their own auction")

	// ErrAuctionNotActive is the base for both timing rejections so callers
	// can match the kind while messages stay distinct.
	ErrAuctionNotActive  = fmt.Errorf("auction is not active")
	ErrAuctionNotStarted = fmt.Errorf("auction has not started yet: %w", ErrAuctionNotActive)
	ErrAuctionEnded      = fmt.Errorf("auction has ended: %w", ErrAuctionNotActive)

	// ErrStoreUnavailable means the outcome is unknown: the bid was neither
	// accepted nor rejected and the caller should retry with backoff.
	ErrStoreUnavailable = fmt.Errorf("durable store unavailable")

	// ErrHighestBidStale is returned by AuctionRepository.SetHighestBid when
	// the conditional update finds the stored highest bid no longer below
	// the new amount.
	ErrHighestBidStale = fmt.Errorf("stored highest bid is no longer below the new amount")
)

// BidTooLowError reports a rejection with the minimum the next bid must meet.
// Race losses at commit time are re-expressed as this error with the fresh
// minimum so callers can retry transparently.
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be at least %s", e.Minimum.StringFixed(2))
}

const cacheWriteTimeout = 500 * time.Millisecond

// Service is the bid arbitration engine: it validates an incoming bid
// against auction timing and state rules, atomically decides whether it
// becomes the new highest bid, and records the accepted-bid event for the
// notification fanout.
type Service struct {
	txManager   database.TransactionManager
	bidRepo     BidRepository
	auctionRepo AuctionRepository
	outboxRepo  OutboxRepository
	cache       HighestBidCache
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new arbitration service
func NewService(
	txManager database.TransactionManager,
	bidRepo BidRepository,
	auctionRepo AuctionRepository,
	outboxRepo OutboxRepository,
	cache HighestBidCache,
	logger *slog.Logger,
) *Service {
	return &Service{
		txManager:   txManager,
		bidRepo:     bidRepo,
		auctionRepo: auctionRepo,
		outboxRepo:  outboxRepo,
		cache:       cache,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PlaceBid arbitrates a single bid. Validation reads the cached highest bid
// as a latency hint with the store as fallback; the accept decision itself is
// re-validated against the store under a per-auction row lock, so two
// concurrent bids reading the same stale reference can never both win.
func (s *Service) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*Acceptance, error) {
	auction, err := s.auctionRepo.GetAuctionByID(ctx, cmd.AuctionID)
	if err != nil {
		return nil, ErrAuctionNotFound
	}

	now := s.now()
	if err := validateActive(auction, now); err != nil {
		return nil, err
	}

	if auction.SellerID == cmd.BidderID {
		return nil, ErrSellerCannotBid
	}

	if !cmd.Amount.IsPositive() {
		return nil, ErrInvalidBidAmount
	}

	// Resolve the reference highest bid: cache first, store on miss or
	// failure. This only gates the cheap pre-check; acceptance is decided
	// against the store below.
	reference := auction.CurrentHighestBid
	if cached, _, ok, cacheErr := s.cache.GetHighestBid(ctx, cmd.AuctionID); cacheErr != nil {
		s.logger.Warn("highest-bid cache read failed, falling back to store", "auction_id", cmd.AuctionID, "error", cacheErr)
	} else if ok {
		reference = cached
	}

	minimum := reference.Add(auction.BidIncrement)
	if cmd.Amount.LessThan(minimum) {
		return nil, &BidTooLowError{Minimum: minimum}
	}

	acceptance, err := s.commit(ctx, cmd, now)
	if err != nil {
		return nil, err
	}

	// Best-effort cache refresh. A failure here leaves the cache stale,
	// which later reads tolerate; it never fails the accepted bid.
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheWriteTimeout)
	defer cancel()
	if cacheErr := s.cache.SetHighestBid(cacheCtx, cmd.AuctionID, cmd.Amount, cmd.BidderID); cacheErr != nil {
		s.logger.Warn("highest-bid cache write failed", "auction_id", cmd.AuctionID, "error", cacheErr)
	}

	return acceptance, nil
}

// commit runs the atomic accept/reject decision as a single transaction:
// lock the auction row, re-validate against the now-current values, append
// the bid, conditionally raise the highest bid and stage the fanout event.
func (s *Service) commit(ctx context.Context, cmd PlaceBidCommand, now time.Time) (*Acceptance, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.auctionRepo.GetAuctionByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	// Re-validate under the lock: the auction may have been force-ended or
	// outbid since the pre-check.
	if err := validateActive(auction, now); err != nil {
		return nil, err
	}

	minimum := auction.MinimumBid()
	if cmd.Amount.LessThan(minimum) {
		// Another bid won the race; report the fresh minimum.
		return nil, &BidTooLowError{Minimum: minimum}
	}

	previousBidderID := auction.WinnerID

	bid := &Bid{
		ID:        uuid.New(),
		AuctionID: cmd.AuctionID,
		BidderID:  cmd.BidderID,
		Amount:    cmd.Amount,
		CreatedAt: now,
	}

	if err := s.bidRepo.SaveBid(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to save bid: %w", err)
	}

	if err := s.auctionRepo.SetHighestBid(ctx, tx, cmd.AuctionID, cmd.Amount, cmd.BidderID); err != nil {
		if errors.Is(err, ErrHighestBidStale) {
			// Unreachable while the row lock is held, kept as a guard on
			// the storage contract.
			return nil, &BidTooLowError{Minimum: minimum}
		}
		return nil, fmt.Errorf("failed to update highest bid: %w", err)
	}

	payload, err := json.Marshal(BidAcceptedEvent{
		BidID:            bid.ID,
		AuctionID:        bid.AuctionID,
		BidderID:         bid.BidderID,
		SellerID:         auction.SellerID,
		ItemName:         auction.ItemName,
		Amount:           bid.Amount,
		PreviousBidderID: previousBidderID,
		AcceptedAt:       bid.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: EventTypeBidAccepted,
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: now,
	}
	if err := s.outboxRepo.SaveEvent(ctx, tx, outboxEvent); err != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", err)
	}

	// Until this returns, the bid is neither accepted nor rejected.
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return &Acceptance{Bid: bid, PreviousBidderID: previousBidderID}, nil
}

// ListBids retrieves the bid history for an auction, newest first
func (s *Service) ListBids(ctx context.Context, query ListBidsQuery) ([]*Bid, error) {
	if query.Limit <= 0 {
		query.Limit = 20
	}
	result, err := s.bidRepo.ListBidsByAuctionID(ctx, query.AuctionID, query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return result, nil
}

// validateActive maps the lifecycle state at now onto the timing rejections
func validateActive(auction *auctions.Auction, now time.Time) error {
	switch auction.Classify(now) {
	case auctions.StatusUpcoming:
		return ErrAuctionNotStarted
	case auctions.StatusEnded:
		return ErrAuctionEnded
	default:
		return nil
	}
}
