package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/school-management/internal/logging"
)

const dialTimeout = 2 * time.Second

// Publisher sends AuthEvents to a durable queue.  A connection is dialed per
// publish; session events are rare enough that a pooled channel is not worth
// the reconnect bookkeeping.
type Publisher struct {
	url   string
	queue string
	log   logging.Logger
}

func NewPublisher(url, queue string, log logging.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, log: log}
}

// Publish marshals ev and publishes it as a persistent message.  Errors are
// logged and returned so the caller can ignore them.
func (p *Publisher) Publish(ctx context.Context, ev AuthEvent) error {
	if err := p.publish(ctx, ev); err != nil {
		p.log.Warn(ctx, "event publish failed", "type", ev.Type, "account_id", ev.AccountID, "err", err)
		return err
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, ev AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	return ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	})
}

// Nop discards events; used when EVENTS_ENABLED is false and in tests.
type Nop struct{}

func (Nop) Publish(context.Context, AuthEvent) error { return nil }
