package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"aetheris-web/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

const (
	SessionsExchange = "aetheris.sessions"
	AuditQueue       = "session.audit"
	// routingKeyPrefix is followed by the event type.
	routingKeyPrefix = "session."
)

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// RoutingKey returns the routing key events of type t are published with.
func RoutingKey(t domain.SessionEventType) string {
	return routingKeyPrefix + string(t)
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry dials until it succeeds or ctx is done, backing off
// exponentially between attempts.
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	backoff := retry.WithCappedDuration(5*time.Second, retry.NewExponential(250*time.Millisecond))

	var rmq *RabbitMQ
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := NewRabbitMQ(url)
		if err != nil {
			slog.Warn("rabbitmq not ready, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		rmq = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq unavailable after %d attempts: %w", attempt, err)
	}
	return rmq, nil
}

// Setup declares the sessions exchange and the durable audit queue bound
// to every session event.
func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		SessionsExchange, // name
		"topic",          // type
		true,             // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	); err != nil {
		return fmt.Errorf("failed to declare sessions exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		AuditQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", AuditQueue, err)
	}

	if err := r.channel.QueueBind(
		AuditQueue,           // queue name
		routingKeyPrefix+"*", // routing key
		SessionsExchange,     // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", AuditQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishSessionEvent implements domain.EventPublisher.
func (r *RabbitMQ) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		SessionsExchange,
		RoutingKey(event.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID,
			Timestamp:    event.Timestamp,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	slog.Debug("published session event",
		slog.String("type", string(event.Type)),
		slog.String("id", event.ID))
	return nil
}

// ConsumeAudit starts delivering messages of the audit queue. Deliveries
// must be acknowledged by the caller.
func (r *RabbitMQ) ConsumeAudit() (<-chan amqp.Delivery, error) {
	msgs, err := r.channel.Consume(
		AuditQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming session events",
		slog.String("queue", AuditQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

// Ping reports a closed connection as an error.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	if r.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishSessionEvent(ctx context.Context, event domain.SessionEvent) error {
	return nil
}
