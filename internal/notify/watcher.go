package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/internal/dispatch/storage"
)

// Watcher polls the job store and vendor directory, diffs successive
// snapshots and feeds the engine. Because events carry deterministic dedupe
// keys, it may safely overlap with the service's direct emits.
type Watcher struct {
	store    storage.Store
	vendors  domain.VendorDirectory
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	prevJobs    []domain.Job
	prevBids    []domain.Bid
	prevVendors []domain.Vendor
	primed      bool
}

func NewWatcher(store storage.Store, vendors domain.VendorDirectory, engine *Engine, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		store:    store,
		vendors:  vendors,
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the context is canceled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Snapshot watcher started",
		slog.Duration("interval", w.interval),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Snapshot watcher stopped")
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.Error("Snapshot poll failed",
					slog.Any("error", err),
				)
			}
		}
	}
}

// completedRetention keeps recently completed jobs in the snapshot long
// enough for their terminal transition to diff before they drop out.
const completedRetention = time.Hour

// Tick takes one snapshot, diffs it against the previous one and publishes
// the resulting events. The first tick only primes the baseline. The
// snapshot covers open jobs plus a trailing completion window, so the poll
// stays bounded as the job history grows.
func (w *Watcher) Tick(ctx context.Context) error {
	jobs, err := w.store.ListJobs(ctx, storage.JobFilter{
		ActiveSince: time.Now().Add(-completedRetention),
	})
	if err != nil {
		return err
	}

	jobIDs := make([]string, len(jobs))
	for i := range jobs {
		jobIDs[i] = jobs[i].JobID
	}

	bids, err := w.store.ListBidsForJobs(ctx, jobIDs)
	if err != nil {
		return err
	}

	var vendors []domain.Vendor
	if w.vendors != nil {
		vendors, err = w.vendors.ListVendors(ctx)
		if err != nil {
			return err
		}
	}

	if w.primed {
		events := DiffJobs(w.prevJobs, jobs)
		events = append(events, DiffBids(jobs, w.prevBids, bids)...)
		events = append(events, DiffVendors(w.prevVendors, vendors)...)

		for _, ev := range events {
			if err := w.engine.PublishEvent(ctx, ev); err != nil {
				w.logger.Error("Failed to publish watcher event",
					slog.String("dedupe_key", ev.Notification.Meta.DedupeKey),
					slog.Any("error", err),
				)
			}
		}
	}

	w.prevJobs = jobs
	w.prevBids = bids
	w.prevVendors = vendors
	w.primed = true
	return nil
}
