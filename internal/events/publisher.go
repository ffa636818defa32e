package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/logging"
	"github.com/andreasstove999/ecommerce-system/checkout-service-go/internal/order"
)

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher emits order events to the shared topic exchange. amqp channels
// are not safe for concurrent publishing, so publishes are serialized.
type Publisher struct {
	mu  sync.Mutex
	ch  channel
	seq SequenceSource
	now func() time.Time
}

func NewPublisher(conn *amqp.Connection, seq SequenceSource) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}

	return newPublisher(ch, seq), nil
}

func newPublisher(ch channel, seq SequenceSource) *Publisher {
	return &Publisher{
		ch:  ch,
		seq: seq,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) PublishOrderPlaced(ctx context.Context, o *order.Order) error {
	seq, err := p.seq.NextSequence(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	env := BuildOrderPlaced(o, seq, metaFrom(ctx), p.now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal OrderPlaced: %w", err)
	}
	return p.publishJSON(ctx, OrderPlacedRoutingKey, env.EventID, env.CorrelationID, body)
}

func (p *Publisher) PublishOrderCompleted(ctx context.Context, o *order.Order) error {
	seq, err := p.seq.NextSequence(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	env := BuildOrderCompleted(o, seq, metaFrom(ctx), p.now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal OrderCompleted: %w", err)
	}
	return p.publishJSON(ctx, OrderCompletedRoutingKey, env.EventID, env.CorrelationID, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID, correlationID string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     messageID,
			CorrelationId: correlationID,
			Timestamp:     p.now(),
			Body:          body,
		},
	)
}

func metaFrom(ctx context.Context) Meta {
	return Meta{CorrelationID: logging.CorrelationID(ctx)}
}

// Nop discards events. Used when EVENTS_ENABLED is false.
type Nop struct{}

func (Nop) PublishOrderPlaced(context.Context, *order.Order) error    { return nil }
func (Nop) PublishOrderCompleted(context.Context, *order.Order) error { return nil }
