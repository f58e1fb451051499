package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"aetheris-web/internal/domain"
	"aetheris-web/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer writes every session event it receives as a structured log
// line and counts it by type.
type AuditConsumer struct {
	log *slog.Logger
}

func NewAuditConsumer(log *slog.Logger) *AuditConsumer {
	if log == nil {
		log = slog.Default()
	}
	return &AuditConsumer{log: log}
}

// Run processes deliveries until ctx is done or the channel closes.
// Malformed messages are rejected without requeue so they do not loop.
func (c *AuditConsumer) Run(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.log.Info("stopping audit consumer")
			return
		case msg, ok := <-msgs:
			if !ok {
				c.log.Warn("audit consumer channel closed")
				return
			}

			if err := c.Handle(msg.Body); err != nil {
				c.log.Error("dropping session event",
					slog.String("error", err.Error()),
					slog.String("routing_key", msg.RoutingKey))
				_ = msg.Reject(false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// Handle audits one encoded event.
func (c *AuditConsumer) Handle(body []byte) error {
	var event domain.SessionEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode session event: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("session event without type")
	}

	observability.SessionAuditEvents.WithLabelValues(string(event.Type)).Inc()

	attrs := []any{
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.Time("at", event.Timestamp),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", event.Email))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.Path != "" {
		attrs = append(attrs, slog.String("path", event.Path))
	}

	level := slog.LevelInfo
	if event.Type == domain.EventLoginFailed || event.Type == domain.EventRefreshFailed {
		level = slog.LevelWarn
	}
	c.log.Log(context.Background(), level, "session event", attrs...)
	return nil
}
