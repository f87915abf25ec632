package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/towbridge/dispatch/shared/rabbitmq"
)

// Deliverer is the fire-and-forget delivery channel collaborator. Failures
// are logged and swallowed by the engine; they never roll back the stored
// notification.
type Deliverer interface {
	Deliver(ctx context.Context, r Recipient, n Notification) error
}

// NoopDeliverer drops deliveries; used in tests and when no channel is
// configured.
type NoopDeliverer struct{}

func (NoopDeliverer) Deliver(ctx context.Context, r Recipient, n Notification) error {
	return nil
}

// PushMessage is the wire format consumed by the notify worker.
type PushMessage struct {
	Recipient    Recipient    `json:"recipient"`
	Notification Notification `json:"notification"`
}

// AMQPDeliverer publishes accepted notifications to the push exchange.
type AMQPDeliverer struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

func NewAMQPDeliverer(client *rabbitmq.Client, logger *slog.Logger) *AMQPDeliverer {
	return &AMQPDeliverer{
		client: client,
		logger: logger,
	}
}

func (d *AMQPDeliverer) Deliver(ctx context.Context, r Recipient, n Notification) error {
	body, err := json.Marshal(PushMessage{Recipient: r, Notification: n})
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	if err := d.client.Publish(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish push message: %w", err)
	}

	d.logger.Debug("Push delivery published",
		slog.String("recipient", r.Key()),
		slog.String("notification_id", n.ID),
	)
	return nil
}
