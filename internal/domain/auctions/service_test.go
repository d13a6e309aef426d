package auctions

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/openlot/arbiter/pkg/events"
	"github.com/openlot/arbiter/pkg/testhelpers"
)

// MockRepository is a mock implementation of Repository for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateAuction(ctx context.Context, auction *Auction) error {
	args := m.Called(ctx, auction)
	return args.Error(0)
}

func (m *MockRepository) GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Auction), args.Error(1)
}

func (m *MockRepository) GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Auction, error) {
	args := m.Called(ctx, tx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Auction), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, status Status) error {
	args := m.Called(ctx, tx, auctionID, status)
	return args.Error(0)
}

func (m *MockRepository) ListAuctions(ctx context.Context, status *Status, limit, offset int) ([]*Auction, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Auction), args.Error(1)
}

func (m *MockRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Auction, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Auction), args.Error(1)
}

// MockOutboxRepository is a mock implementation of OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) SaveEvent(ctx context.Context, tx pgx.Tx, event *events.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

// MockHighestBidCache is a mock implementation of HighestBidCache
type MockHighestBidCache struct {
	mock.Mock
}

func (m *MockHighestBidCache) GetHighestBid(ctx context.Context, auctionID uuid.UUID) (decimal.Decimal, uuid.UUID, bool, error) {
	args := m.Called(ctx, auctionID)
	return args.Get(0).(decimal.Decimal), args.Get(1).(uuid.UUID), args.Bool(2), args.Error(3)
}

func newTestService(repo *MockRepository, outboxRepo *MockOutboxRepository, cache *MockHighestBidCache) (*Service, *testhelpers.FakeTxManager) {
	txManager := &testhelpers.FakeTxManager{}
	logger := slog.New(slog.DiscardHandler)
	svc := NewService(repo, txManager, outboxRepo, cache, logger)
	return svc, txManager
}

func TestService_CreateAuction(t *testing.T) {
	goLive := time.Now().Add(time.Hour)

	validCmd := func() CreateAuctionCommand {
		return CreateAuctionCommand{
			SellerID:      uuid.New(),
			ItemName:      "Vintage Watch",
			Description:   "A 1960s chronograph",
			StartingPrice: decimal.RequireFromString("10.00"),
			BidIncrement:  decimal.RequireFromString("5.00"),
			GoLiveTime:    goLive,
			DurationHours: 24,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*CreateAuctionCommand)
		wantErr error
	}{
		{
			name:    "valid command succeeds",
			mutate:  func(cmd *CreateAuctionCommand) {},
			wantErr: nil,
		},
		{
			name:    "empty item name",
			mutate:  func(cmd *CreateAuctionCommand) { cmd.ItemName = "" },
			wantErr: ErrInvalidItemName,
		},
		{
			name:    "zero starting price",
			mutate:  func(cmd *CreateAuctionCommand) { cmd.StartingPrice = decimal.Zero },
			wantErr: ErrInvalidStartingPrice,
		},
		{
			name:    "zero increment would allow equal-amount ties",
			mutate:  func(cmd *CreateAuctionCommand) { cmd.BidIncrement = decimal.Zero },
			wantErr: ErrInvalidBidIncrement,
		},
		{
			name: "negative increment",
			mutate: func(cmd *CreateAuctionCommand) {
				cmd.BidIncrement = decimal.RequireFromString("-1.00")
			},
			wantErr: ErrInvalidBidIncrement,
		},
		{
			name:    "zero duration",
			mutate:  func(cmd *CreateAuctionCommand) { cmd.DurationHours = 0 },
			wantErr: ErrInvalidDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc, _ := newTestService(repo, new(MockOutboxRepository), new(MockHighestBidCache))

			cmd := validCmd()
			tt.mutate(&cmd)

			if tt.wantErr == nil {
				repo.On("CreateAuction", mock.Anything, mock.AnythingOfType("*auctions.Auction")).Return(nil)
			}

			auction, err := svc.CreateAuction(context.Background(), cmd)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "CreateAuction")
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, auction.ID)
			assert.Equal(t, StatusUpcoming, auction.Status)
			assert.True(t, auction.CurrentHighestBid.Equal(cmd.StartingPrice),
				"highest bid must default to the starting price")
			assert.Nil(t, auction.WinnerID)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_GetAuction(t *testing.T) {
	auctionID := uuid.New()
	cachedBidder := uuid.New()

	storeAuction := func() *Auction {
		return &Auction{
			ID:                auctionID,
			CurrentHighestBid: decimal.RequireFromString("20.00"),
		}
	}

	t.Run("not found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByID", mock.Anything, auctionID).Return(nil, assert.AnError)
		svc, _ := newTestService(repo, new(MockOutboxRepository), new(MockHighestBidCache))

		_, err := svc.GetAuction(context.Background(), auctionID)
		assert.ErrorIs(t, err, ErrAuctionNotFound)
	})

	t.Run("cache ahead of the store overlays the read", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByID", mock.Anything, auctionID).Return(storeAuction(), nil)
		cache := new(MockHighestBidCache)
		cache.On("GetHighestBid", mock.Anything, auctionID).
			Return(decimal.RequireFromString("25.00"), cachedBidder, true, nil)
		svc, _ := newTestService(repo, new(MockOutboxRepository), cache)

		auction, err := svc.GetAuction(context.Background(), auctionID)
		require.NoError(t, err)
		assert.True(t, auction.CurrentHighestBid.Equal(decimal.RequireFromString("25.00")))
		require.NotNil(t, auction.WinnerID)
		assert.Equal(t, cachedBidder, *auction.WinnerID)
	})

	t.Run("stale-low cache value never shadows the store", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByID", mock.Anything, auctionID).Return(storeAuction(), nil)
		cache := new(MockHighestBidCache)
		cache.On("GetHighestBid", mock.Anything, auctionID).
			Return(decimal.RequireFromString("15.00"), cachedBidder, true, nil)
		svc, _ := newTestService(repo, new(MockOutboxRepository), cache)

		auction, err := svc.GetAuction(context.Background(), auctionID)
		require.NoError(t, err)
		assert.True(t, auction.CurrentHighestBid.Equal(decimal.RequireFromString("20.00")))
		assert.Nil(t, auction.WinnerID)
	})

	t.Run("cache failure degrades to the store value", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByID", mock.Anything, auctionID).Return(storeAuction(), nil)
		cache := new(MockHighestBidCache)
		cache.On("GetHighestBid", mock.Anything, auctionID).
			Return(decimal.Zero, uuid.Nil, false, assert.AnError)
		svc, _ := newTestService(repo, new(MockOutboxRepository), cache)

		auction, err := svc.GetAuction(context.Background(), auctionID)
		require.NoError(t, err)
		assert.True(t, auction.CurrentHighestBid.Equal(decimal.RequireFromString("20.00")))
	})
}

func TestService_SetStatus(t *testing.T) {
	sellerID := uuid.New()
	auctionID := uuid.New()
	goLive := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := goLive.Add(time.Hour) // auction window is open

	liveAuction := func() *Auction {
		return &Auction{
			ID:            auctionID,
			SellerID:      sellerID,
			ItemName:      "Vintage Watch",
			GoLiveTime:    goLive,
			DurationHours: 24,
			Status:        StatusActive,
		}
	}

	t.Run("unknown status", func(t *testing.T) {
		svc, _ := newTestService(new(MockRepository), new(MockOutboxRepository), new(MockHighestBidCache))
		_, err := svc.SetStatus(context.Background(), SetStatusCommand{
			AuctionID:   auctionID,
			RequesterID: sellerID,
			NewStatus:   Status("paused"),
		})
		assert.ErrorIs(t, err, ErrUnknownStatus)
	})

	t.Run("requester is neither seller nor admin", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, auctionID).Return(liveAuction(), nil)
		svc, txm := newTestService(repo, new(MockOutboxRepository), new(MockHighestBidCache))
		svc.WithClock(func() time.Time { return now })

		_, err := svc.SetStatus(context.Background(), SetStatusCommand{
			AuctionID:   auctionID,
			RequesterID: uuid.New(),
			NewStatus:   StatusEnded,
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.False(t, txm.Tx.Committed)
	})

	t.Run("backward transition rejected", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, auctionID).Return(liveAuction(), nil)
		svc, txm := newTestService(repo, new(MockOutboxRepository), new(MockHighestBidCache))
		svc.WithClock(func() time.Time { return now })

		_, err := svc.SetStatus(context.Background(), SetStatusCommand{
			AuctionID:   auctionID,
			RequesterID: sellerID,
			NewStatus:   StatusUpcoming,
		})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.False(t, txm.Tx.Committed)
	})

	t.Run("seller closes early, event committed atomically", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, auctionID).Return(liveAuction(), nil)
		repo.On("UpdateStatus", mock.Anything, mock.Anything, auctionID, StatusEnded).Return(nil)

		outboxRepo := new(MockOutboxRepository)
		var saved *events.OutboxEvent
		outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).
			Run(func(args mock.Arguments) { saved = args.Get(2).(*events.OutboxEvent) }).
			Return(nil)

		svc, txm := newTestService(repo, outboxRepo, new(MockHighestBidCache))
		svc.WithClock(func() time.Time { return now })

		auction, err := svc.SetStatus(context.Background(), SetStatusCommand{
			AuctionID:   auctionID,
			RequesterID: sellerID,
			NewStatus:   StatusEnded,
		})
		require.NoError(t, err)
		assert.Equal(t, StatusEnded, auction.Status)
		assert.True(t, txm.Tx.Committed)

		require.NotNil(t, saved)
		assert.Equal(t, EventTypeStatusChanged, saved.EventType)

		var payload StatusChangedEvent
		require.NoError(t, json.Unmarshal(saved.Payload, &payload))
		assert.Equal(t, auctionID, payload.AuctionID)
		assert.Equal(t, StatusActive, payload.OldStatus)
		assert.Equal(t, StatusEnded, payload.NewStatus)
		repo.AssertExpectations(t)
	})

	t.Run("admin may close someone else's auction", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, auctionID).Return(liveAuction(), nil)
		repo.On("UpdateStatus", mock.Anything, mock.Anything, auctionID, StatusEnded).Return(nil)
		outboxRepo := new(MockOutboxRepository)
		outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		svc, _ := newTestService(repo, outboxRepo, new(MockHighestBidCache))
		svc.WithClock(func() time.Time { return now })

		_, err := svc.SetStatus(context.Background(), SetStatusCommand{
			AuctionID:   auctionID,
			RequesterID: uuid.New(),
			IsAdmin:     true,
			NewStatus:   StatusEnded,
		})
		assert.NoError(t, err)
	})
}

func TestService_CloseExpired(t *testing.T) {
	goLive := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := goLive.Add(48 * time.Hour) // well past the 24h window

	expiredAuction := func() *Auction {
		winnerID := uuid.New()
		return &Auction{
			ID:                uuid.New(),
			SellerID:          uuid.New(),
			ItemName:          "Vintage Watch",
			GoLiveTime:        goLive,
			DurationHours:     24,
			Status:            StatusActive,
			CurrentHighestBid: decimal.RequireFromString("35.00"),
			WinnerID:          &winnerID,
		}
	}

	t.Run("expired auction is ended with a status event", func(t *testing.T) {
		auction := expiredAuction()
		repo := new(MockRepository)
		repo.On("ListExpired", mock.Anything, now, 50).Return([]*Auction{auction}, nil)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, auction.ID).Return(auction, nil)
		repo.On("UpdateStatus", mock.Anything, mock.Anything, auction.ID, StatusEnded).Return(nil)

		outboxRepo := new(MockOutboxRepository)
		var saved *events.OutboxEvent
		outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.AnythingOfType("*events.OutboxEvent")).
			Run(func(args mock.Arguments) { saved = args.Get(2).(*events.OutboxEvent) }).
			Return(nil)

		svc, txm := newTestService(repo, outboxRepo, new(MockHighestBidCache))
		svc.WithClock(func() time.Time { return now })

		closed, err := svc.CloseExpired(context.Background(), 50)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, StatusEnded, closed[0].Status)
		assert.True(t, txm.Tx.Committed)

		require.NotNil(t, saved)
		var payload StatusChangedEvent
		require.NoError(t, json.Unmarshal(saved.Payload, &payload))
		assert.Equal(t, StatusActive, payload.OldStatus)
		assert.Equal(t, StatusEnded, payload.NewStatus)
		require.NotNil(t, payload.WinnerID)
		assert.Equal(t, *auction.WinnerID, *payload.WinnerID)
		assert.True(t, payload.FinalAmount.Equal(decimal.RequireFromString("35.00")))
	})

	t.Run("already ended under the lock is skipped silently", func(t *testing.T) {
		auction := expiredAuction()
		raced := expiredAuction()
		raced.ID = auction.ID
		raced.Status = StatusEnded

		repo := new(MockRepository)
		repo.On("ListExpired", mock.Anything, now, 50).Return([]*Auction{auction}, nil)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, auction.ID).Return(raced, nil)

		svc, txm := newTestService(repo, new(MockOutboxRepository), new(MockHighestBidCache))
		svc.WithClock(func() time.Time { return now })

		closed, err := svc.CloseExpired(context.Background(), 50)
		require.NoError(t, err)
		assert.Empty(t, closed)
		repo.AssertNotCalled(t, "UpdateStatus")
		assert.False(t, txm.Tx.Committed)
	})

	t.Run("one failing auction does not block the rest", func(t *testing.T) {
		failing := expiredAuction()
		passing := expiredAuction()

		repo := new(MockRepository)
		repo.On("ListExpired", mock.Anything, now, 50).Return([]*Auction{failing, passing}, nil)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, failing.ID).Return(nil, assert.AnError)
		repo.On("GetAuctionByIDForUpdate", mock.Anything, mock.Anything, passing.ID).Return(passing, nil)
		repo.On("UpdateStatus", mock.Anything, mock.Anything, passing.ID, StatusEnded).Return(nil)

		outboxRepo := new(MockOutboxRepository)
		outboxRepo.On("SaveEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		svc, _ := newTestService(repo, outboxRepo, new(MockHighestBidCache))
		svc.WithClock(func() time.Time { return now })

		closed, err := svc.CloseExpired(context.Background(), 50)
		require.NoError(t, err)
		require.Len(t, closed, 1)
		assert.Equal(t, passing.ID, closed[0].ID)
	})
}
