package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DomainExchange carries outbox events (bid.accepted, auction.status_changed)
	DomainExchange = "auction.events"
	// BroadcastExchange carries realtime events keyed by topic
	// (auction:{id}, user:{id})
	BroadcastExchange = "auction.broadcast"
)

// RabbitMQPublisher implements events.EventPublisher and
// notifications.Broadcaster on a single channel, so publishes for one
// auction leave in order.
type RabbitMQPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQPublisher creates a publisher and declares both exchanges
func NewRabbitMQPublisher(conn *amqp.Connection) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, exchange := range []string{DomainExchange, BroadcastExchange} {
		err = ch.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	return &RabbitMQPublisher{
		conn:    conn,
		channel: ch,
	}, nil
}

// Close closes the channel
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}

// Publish publishes a raw message to the broker
func (p *RabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.channel.PublishWithContext(ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Broadcast publishes a realtime event to a named topic. Subscribers bind
// queues to the broadcast exchange with the topic as routing key.
func (p *RabbitMQPublisher) Broadcast(ctx context.Context, topic string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast event: %w", err)
	}
	return p.Publish(ctx, BroadcastExchange, topic, body)
}
