package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Retention is how long session metrics are kept
const Retention = 30 * 24 * time.Hour

// Store persists flushed metrics
type Store interface {
	SaveMetric(ctx context.Context, metric *SessionMetric) error
	DeleteOldMetrics(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Aggregator periodically flushes session counters and prunes old metrics
type Aggregator struct {
	store     Store
	collector *Collector
	logger    *slog.Logger
	interval  time.Duration
	done      chan struct{}
}

// NewAggregator creates a new metrics aggregator worker
func NewAggregator(store Store, collector *Collector, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 1 * time.Minute
	}

	return &Aggregator{
		store:     store,
		collector: collector,
		logger:    logger,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

// Start begins the aggregation worker. Pending counters are flushed once
// more before it returns.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)

	for {
		select {
		case <-ctx.Done():
			a.Flush(context.WithoutCancel(ctx))
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.Flush(ctx)
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.aggregate(ctx)
		}
	}
}

// Stop gracefully shuts down the aggregator
func (a *Aggregator) Stop() {
	close(a.done)
}

// Flush writes the pending counters of every session and returns how many
// metrics were stored
func (a *Aggregator) Flush(ctx context.Context) int {
	saved := 0
	for _, metric := range a.collector.drain() {
		if err := a.store.SaveMetric(ctx, metric); err != nil {
			a.logger.Error("failed to save metric",
				"session_id", metric.SessionID,
				"metric", metric.Name,
				"error", err,
			)
			continue
		}
		saved++
	}
	return saved
}

func (a *Aggregator) aggregate(ctx context.Context) {
	a.logger.Debug("running metrics aggregation", "active_sessions", a.collector.Active())

	if saved := a.Flush(ctx); saved > 0 {
		a.logger.Debug("flushed session metrics", "count", saved)
	}

	deleted, err := a.store.DeleteOldMetrics(ctx, Retention)
	if err != nil {
		a.logger.Error("failed to delete old metrics", "error", err)
	} else if deleted > 0 {
		a.logger.Info("deleted old metrics", "count", deleted)
	}
}
