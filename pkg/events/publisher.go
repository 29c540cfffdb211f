package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Event types published during a run.
const (
	TypeRunCompleted         = "run.completed"
	TypeRegistrationEnrolled = "registration.enrolled"
)

// Envelope wraps every message written to the queue.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends JSON envelopes to a durable queue on the default exchange.
type Publisher struct {
	channel Channel
	conn    *amqp.Connection
	queue   string
	logger  *zap.Logger
	mu      sync.Mutex
	now     func() time.Time
}

// Dial connects to the broker, opens a channel and declares the queue.
func Dial(url, queue string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	pub, err := NewPublisher(ch, queue, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	pub.conn = conn
	return pub, nil
}

// NewPublisher declares the queue on an existing channel.
func NewPublisher(ch Channel, queue string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue == "" {
		queue = "registration.events"
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &Publisher{channel: ch, queue: queue, logger: logger, now: time.Now}, nil
}

// Publish marshals payload into an envelope and sends it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	envelope := Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: p.now().UTC(),
		Payload:    body,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.ID,
		Type:         eventType,
		Timestamp:    envelope.OccurredAt,
		Body:         raw,
	}

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.logger.Sugar().Warnw("event publish failed", "type", eventType, "queue", p.queue, "error", err)
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close releases the channel and, when owned, the connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
