package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const tierQueueName = "loyalty.tier_changed"

// Publisher emits loyalty events to RabbitMQ. A connection is dialed per
// publish; tier changes are rare enough that holding a channel open is not
// worth the reconnect bookkeeping. Errors are logged and returned so callers
// can ignore failures without interrupting their own flow.
type Publisher struct {
	url string
	log *zap.Logger
}

// NewPublisher returns a Publisher using the environment's broker URL.
func NewPublisher(log *zap.Logger) *Publisher {
	return &Publisher{url: BrokerURL(), log: log}
}

// PublishTierChanged publishes a TierChangedEvent to the durable
// loyalty.tier_changed queue. Messages are marked persistent.
func (p *Publisher) PublishTierChanged(ctx context.Context, event TierChangedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(tierQueueName, true, false, false, false, nil); err != nil {
		p.log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",            // default exchange
		tierQueueName, // routing key
		false,         // mandatory
		false,         // immediate
		pub,
	); err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}
