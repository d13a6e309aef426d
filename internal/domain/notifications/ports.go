package notifications

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for notification persistence
type Repository interface {
	// SaveNotification appends a notification row
	SaveNotification(ctx context.Context, notification *Notification) error

	// ListByUserID retrieves a user's notifications, newest first
	ListByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Notification, error)

	// MarkRead flags a notification as read if it belongs to the user.
	// Returns ErrNotificationNotFound otherwise.
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error
}

// Broadcaster publishes realtime events to named topics on the broadcast
// channel. Delivery is fire-and-forget, at-least-once, unordered across
// topics.
type Broadcaster interface {
	Broadcast(ctx context.Context, topic string, event any) error
}
