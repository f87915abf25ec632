package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/towbridge/dispatch/internal/obs"
)

// DefaultCapacity bounds each recipient's log; oldest entries are evicted
// past it.
const DefaultCapacity = 80

// Engine guarantees at-most-once visible delivery per dedupe key per
// recipient, no matter how many times upstream pollers re-detect the same
// condition.
type Engine struct {
	log       Log
	deliverer Deliverer
	capacity  int
	now       func() time.Time
	logger    *slog.Logger
}

func NewEngine(log Log, deliverer Deliverer, capacity int, logger *slog.Logger) *Engine {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if deliverer == nil {
		deliverer = NoopDeliverer{}
	}
	return &Engine{
		log:       log,
		deliverer: deliverer,
		capacity:  capacity,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the engine clock; test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Publish normalizes, dedupes, stores and delivers one notification. The
// returned bool reports whether the notification was stored; a dedupe drop
// is a silent no-op, not an error.
func (e *Engine) Publish(ctx context.Context, r Recipient, n Notification) (Notification, bool, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = e.now()
	}
	if n.Kind == "" {
		n.Kind = KindOther
	}
	if n.DedupeKey == "" {
		n.DedupeKey = n.Meta.DedupeKey
	}
	n.Read = false

	stored, err := e.log.Insert(ctx, r, n, e.capacity)
	if err != nil {
		return n, false, err
	}
	if !stored {
		obs.RecordNotification("deduped")
		return n, false, nil
	}

	obs.RecordNotification("stored")

	// Delivery is fire-and-forget: a failed push must not undo the stored
	// notification.
	if err := e.deliverer.Deliver(ctx, r, n); err != nil {
		obs.RecordNotification("delivery_failed")
		e.logger.Warn("Notification delivery failed",
			slog.String("recipient", r.Key()),
			slog.String("notification_id", n.ID),
			slog.Any("error", err),
		)
	}

	return n, true, nil
}

// PublishMany applies the per-item dedupe rule, preserving input order in
// the delivered set.
func (e *Engine) PublishMany(ctx context.Context, r Recipient, items []Notification) ([]Notification, error) {
	var delivered []Notification
	for _, n := range items {
		out, stored, err := e.Publish(ctx, r, n)
		if err != nil {
			return delivered, err
		}
		if stored {
			delivered = append(delivered, out)
		}
	}
	return delivered, nil
}

// PublishEvent fans an event out to each of its recipients.
func (e *Engine) PublishEvent(ctx context.Context, ev Event) error {
	for _, r := range ev.Recipients {
		if _, _, err := e.Publish(ctx, r, ev.Notification); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) List(ctx context.Context, r Recipient) ([]Notification, error) {
	return e.log.List(ctx, r)
}

func (e *Engine) MarkRead(ctx context.Context, r Recipient, id string) error {
	return e.log.MarkRead(ctx, r, id)
}

func (e *Engine) MarkAllRead(ctx context.Context, r Recipient) error {
	return e.log.MarkAllRead(ctx, r)
}

func (e *Engine) ClearAll(ctx context.Context, r Recipient) error {
	return e.log.Clear(ctx, r)
}
