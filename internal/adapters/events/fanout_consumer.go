package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/openlot/arbiter/internal/domain/auctions"
	"github.com/openlot/arbiter/internal/domain/bids"
	"github.com/openlot/arbiter/internal/domain/notifications"
)

const fanoutQueue = "fanout_notifications"

// FanoutConsumer consumes domain events and drives the notification fanout.
// A single consumer on one queue processes events in publish order, which
// keeps the auction-topic broadcasts FIFO per auction.
type FanoutConsumer struct {
	conn    *amqp.Connection
	service *notifications.Service
	logger  *slog.Logger
}

// NewFanoutConsumer creates a new fanout consumer
func NewFanoutConsumer(conn *amqp.Connection, service *notifications.Service, logger *slog.Logger) *FanoutConsumer {
	return &FanoutConsumer{
		conn:    conn,
		service: service,
		logger:  logger,
	}
}

// Run starts the consumer loop
func (c *FanoutConsumer) Run(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if setupErr := c.setupRabbitMQ(ch); setupErr != nil {
		return fmt.Errorf("failed to setup rabbitmq: %w", setupErr)
	}

	msgs, err := ch.Consume(
		fanoutQueue, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Waiting for events...")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *FanoutConsumer) handle(ctx context.Context, d amqp.Delivery) {
	c.logger.Info("Received event", "routing_key", d.RoutingKey)

	err := c.dispatch(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("Failed to ack message", "error", ackErr)
		}
	case isDecodeError(err):
		// The payload will never parse; requeueing would loop forever.
		c.logger.Error("Failed to decode event", "routing_key", d.RoutingKey, "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to nack message", "error", nackErr)
		}
	default:
		// Notification inserts are retryable; requeue for another attempt.
		c.logger.Error("Failed to process event", "routing_key", d.RoutingKey, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("Failed to nack message (requeue)", "error", nackErr)
		}
	}
}

func (c *FanoutConsumer) dispatch(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case bids.EventTypeBidAccepted:
		var event bids.BidAcceptedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return &decodeError{err: err}
		}
		return c.service.ProcessBidAccepted(ctx, event)
	case auctions.EventTypeStatusChanged:
		var event auctions.StatusChangedEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return &decodeError{err: err}
		}
		return c.service.ProcessStatusChanged(ctx, event)
	default:
		return &decodeError{err: fmt.Errorf("unknown routing key %q", routingKey)}
	}
}

func (c *FanoutConsumer) setupRabbitMQ(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(
		DomainExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		fanoutQueue, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return err
	}

	for _, key := range []string{bids.EventTypeBidAccepted, auctions.EventTypeStatusChanged} {
		if err := ch.QueueBind(q.Name, key, DomainExchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}
