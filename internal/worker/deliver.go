package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/towbridge/dispatch/internal/notify"
	"github.com/towbridge/dispatch/internal/obs"
)

// handleDelivery performs one push delivery. Delivery here is terminal and
// fire-and-forget: malformed messages are dropped, everything else is acked
// once handled.
func (w *Worker) handleDelivery(ctx context.Context, logger *slog.Logger, delivery amqp.Delivery) {
	var msg notify.PushMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		logger.Error("Failed to parse push message",
			slog.Any("error", err),
			slog.String("body", string(delivery.Body)),
		)
		obs.RecordDelivery("malformed")
		// No requeue: a malformed message never becomes parseable.
		if nackErr := delivery.Nack(false, false); nackErr != nil {
			logger.Error("Failed to NACK malformed message",
				slog.Any("error", nackErr),
			)
		}
		return
	}

	w.push(logger, msg)
	obs.RecordDelivery("delivered")

	if err := delivery.Ack(false); err != nil {
		logger.Error("Failed to ACK push message",
			slog.String("notification_id", msg.Notification.ID),
			slog.Any("error", err),
		)
	}
}

// push hands the notification to the local channel. This stands in for the
// OS toast / push-gateway call; its outcome never affects stored state.
func (w *Worker) push(logger *slog.Logger, msg notify.PushMessage) {
	logger.Info("Notification delivered",
		slog.String("recipient", msg.Recipient.Key()),
		slog.String("notification_id", msg.Notification.ID),
		slog.String("kind", string(msg.Notification.Kind)),
		slog.String("title", msg.Notification.Title),
	)
}
