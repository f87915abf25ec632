package worker

import (
	"context"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/towbridge/dispatch/shared/rabbitmq"
)

// Config holds notify worker configuration
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Concurrency   int
	PrefetchCount int
	WorkerID      string
}

// Worker drains the push-delivery queue and performs fire-and-forget
// delivery of notifications to their channel (system toast, push gateway).
type Worker struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	concurrency   int
	prefetchCount int
	workerID      string
	deliveries    chan amqp.Delivery
	wg            sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency * 2
	}
	return &Worker{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		concurrency:   concurrency,
		prefetchCount: prefetch,
		workerID:      cfg.WorkerID,
		deliveries:    make(chan amqp.Delivery, concurrency),
	}
}

// Start begins consuming push messages until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting notify worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	messages, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnPool(ctx)
	w.dispatch(ctx, messages)

	close(w.deliveries)
	w.wg.Wait()

	w.logger.Info("Notify worker stopped",
		slog.String("worker_id", w.workerID),
	)
	return nil
}

// spawnPool spawns N delivery goroutines based on concurrency configuration.
func (w *Worker) spawnPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			logger := w.logger.With(slog.Int("pool_worker", id))
			for delivery := range w.deliveries {
				w.handleDelivery(ctx, logger, delivery)
			}
		}(i)
	}
}
