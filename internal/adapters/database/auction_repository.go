package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/openlot/arbiter/internal/domain/auctions"
	"github.com/openlot/arbiter/internal/domain/bids"
	pkgdb "github.com/openlot/arbiter/pkg/database"
)

const auctionColumns = `id, seller_id, item_name, description, starting_price, bid_increment,
	go_live_time, duration_hours, status, current_highest_bid, winner_id, created_at, updated_at`

// PostgresAuctionRepository implements auctions.Repository and
// bids.AuctionRepository using pgx
type PostgresAuctionRepository struct {
	pool *pgxpool.Pool // for non-transactional reads
}

// NewPostgresAuctionRepository creates a new PostgreSQL auction repository
func NewPostgresAuctionRepository(pool *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{pool: pool}
}

// CreateAuction inserts a new auction row
func (r *PostgresAuctionRepository) CreateAuction(ctx context.Context, auction *auctions.Auction) error {
	query := `
		INSERT INTO auctions (id, seller_id, item_name, description, starting_price, bid_increment,
			go_live_time, duration_hours, status, current_highest_bid, winner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::auction_status, $10, $11, $12, $13)
	`
	_, err := r.pool.Exec(ctx, query,
		auction.ID,
		auction.SellerID,
		auction.ItemName,
		auction.Description,
		auction.StartingPrice,
		auction.BidIncrement,
		auction.GoLiveTime,
		auction.DurationHours,
		auction.Status,
		auction.CurrentHighestBid,
		auction.WinnerID,
		auction.CreatedAt,
		auction.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

// GetAuctionByID retrieves an auction by its ID (non-transactional read)
func (r *PostgresAuctionRepository) GetAuctionByID(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuctionByID(ctx, r.pool, auctionID, false)
}

// GetAuctionByIDForUpdate retrieves an auction and locks its row. The lock
// serializes concurrent bid commits for the same auction while leaving other
// auctions untouched.
func (r *PostgresAuctionRepository) GetAuctionByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getAuctionByID(ctx, tx, auctionID, true)
}

// getAuctionByID is the internal implementation that works with any DBTX
func (r *PostgresAuctionRepository) getAuctionByID(ctx context.Context, db pkgdb.DBTX, auctionID uuid.UUID, forUpdate bool) (*auctions.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var auction auctions.Auction
	err := db.QueryRow(ctx, query, auctionID).Scan(
		&auction.ID,
		&auction.SellerID,
		&auction.ItemName,
		&auction.Description,
		&auction.StartingPrice,
		&auction.BidIncrement,
		&auction.GoLiveTime,
		&auction.DurationHours,
		&auction.Status,
		&auction.CurrentHighestBid,
		&auction.WinnerID,
		&auction.CreatedAt,
		&auction.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("auction not found")
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return &auction, nil
}

// SetHighestBid conditionally records a new highest bid and winner. The
// WHERE clause re-states the monotonic invariant at the storage layer: the
// update applies only while the stored value is strictly below the new
// amount.
func (r *PostgresAuctionRepository) SetHighestBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount decimal.Decimal, bidderID uuid.UUID) error {
	query := `
		UPDATE auctions
		SET current_highest_bid = $1, winner_id = $2, updated_at = NOW()
		WHERE id = $3 AND current_highest_bid < $1
	`
	result, err := tx.Exec(ctx, query, amount, bidderID, auctionID)
	if err != nil {
		return fmt.Errorf("failed to update highest bid: %w", err)
	}

	if result.RowsAffected() == 0 {
		return bids.ErrHighestBidStale
	}

	return nil
}

// UpdateStatus updates an auction's status within a transaction
func (r *PostgresAuctionRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, status auctions.Status) error {
	query := `
		UPDATE auctions
		SET status = $1::auction_status, updated_at = NOW()
		WHERE id = $2
	`
	result, err := tx.Exec(ctx, query, status, auctionID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("auction not found")
	}

	return nil
}

// ListAuctions retrieves auctions ordered by go-live time, optionally
// filtered by persisted status
func (r *PostgresAuctionRepository) ListAuctions(ctx context.Context, status *auctions.Status, limit, offset int) ([]*auctions.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1::auction_status`
		args = append(args, *status)
	}
	query += fmt.Sprintf(` ORDER BY go_live_time DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	return scanAuctions(rows)
}

// ListExpired retrieves auctions past their end time that still carry a
// non-ended status, oldest first. Feeds the closer worker.
func (r *PostgresAuctionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*auctions.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
		WHERE status <> 'ended'::auction_status
			AND go_live_time + duration_hours * INTERVAL '1 hour' <= $1
		ORDER BY go_live_time ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired auctions: %w", err)
	}
	return scanAuctions(rows)
}

func scanAuctions(rows pgx.Rows) ([]*auctions.Auction, error) {
	defer rows.Close()

	var result []*auctions.Auction
	for rows.Next() {
		var auction auctions.Auction
		if err := rows.Scan(
			&auction.ID,
			&auction.SellerID,
			&auction.ItemName,
			&auction.Description,
			&auction.StartingPrice,
			&auction.BidIncrement,
			&auction.GoLiveTime,
			&auction.DurationHours,
			&auction.Status,
			&auction.CurrentHighestBid,
			&auction.WinnerID,
			&auction.CreatedAt,
			&auction.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		result = append(result, &auction)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}

	return result, nil
}
