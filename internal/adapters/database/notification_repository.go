package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openlot/arbiter/internal/domain/notifications"
)

// PostgresNotificationRepository implements notifications.Repository using pgx
type PostgresNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresNotificationRepository creates a new PostgreSQL notification repository
func NewPostgresNotificationRepository(pool *pgxpool.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{pool: pool}
}

// SaveNotification appends a notification row
func (r *PostgresNotificationRepository) SaveNotification(ctx context.Context, notification *notifications.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, auction_id, type, message, read, created_at)
		VALUES ($1, $2, $3, $4::notification_type, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		notification.ID,
		notification.UserID,
		notification.AuctionID,
		notification.Type,
		notification.Message,
		notification.Read,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListByUserID retrieves a user's notifications, newest first
func (r *PostgresNotificationRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*notifications.Notification, error) {
	query := `
		SELECT id, user_id, auction_id, type, message, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var result []*notifications.Notification
	for rows.Next() {
		var n notifications.Notification
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.AuctionID,
			&n.Type,
			&n.Message,
			&n.Read,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		result = append(result, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return result, nil
}

// MarkRead flags a notification as read, scoped to its recipient so users
// cannot touch each other's rows
func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	query := `
		UPDATE notifications
		SET read = TRUE
		WHERE id = $1 AND user_id = $2
	`
	result, err := r.pool.Exec(ctx, query, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}

	return nil
}
