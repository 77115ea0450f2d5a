package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPollInterval is how often the retry queue is polled
	DefaultPollInterval = 5 * time.Second
	// DefaultBatchSize caps the jobs claimed per poll
	DefaultBatchSize = 10
	// MaxRetryDelay caps the exponential backoff
	MaxRetryDelay = time.Hour
	// StaleAfter returns a claimed job to the queue when its worker died
	StaleAfter = 5 * time.Minute
	// Retention is how long delivered and failed jobs are kept
	Retention = 7 * 24 * time.Hour
)

// Worker retries queued deliveries with exponential backoff. Jobs are
// claimed by flipping them to processing, so several API instances can
// share one queue.
type Worker struct {
	db       DB
	service  *Service
	logger   *slog.Logger
	interval time.Duration
	batch    int
	stopCh   chan struct{}
}

func NewWorker(db DB, service *Service, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Worker{
		db:       db,
		service:  service,
		logger:   logger.With(slog.String("component", "webhook_worker")),
		interval: interval,
		batch:    DefaultBatchSize,
		stopCh:   make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook worker started", slog.Duration("interval", w.interval))
	defer w.logger.Info("webhook worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.processQueue(ctx); err != nil {
				w.logger.Error("failed to process webhook queue", slog.Any("error", err))
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

// RetryDelay is the wait before retry number attempts+1
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 12 {
		return MaxRetryDelay
	}
	return min(time.Duration(1<<attempts)*time.Second, MaxRetryDelay)
}

func (w *Worker) processQueue(ctx context.Context) error {
	if err := w.requeueStale(ctx); err != nil {
		return err
	}

	jobs, err := w.claim(ctx)
	if err != nil {
		return err
	}

	for i := range jobs {
		job := &jobs[i]
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("failed to process webhook job",
				slog.String("job_id", job.ID.String()),
				slog.String("webhook_id", job.WebhookID.String()),
				slog.Int("attempts", job.Attempts),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// claim marks up to batch due jobs as processing and returns them
func (w *Worker) claim(ctx context.Context) ([]WebhookJob, error) {
	query := `
		UPDATE webhook_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM webhook_queue
			WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, webhook_id, event_type, payload, attempts, max_attempts
	`

	rows, err := w.db.Query(ctx, query, w.batch)
	if err != nil {
		return nil, fmt.Errorf("claim webhook jobs: %w", err)
	}
	defer rows.Close()

	var jobs []WebhookJob
	for rows.Next() {
		job := WebhookJob{Status: JobProcessing}
		if err := rows.Scan(
			&job.ID, &job.WebhookID, &job.EventType,
			&job.Payload, &job.Attempts, &job.MaxAttempts,
		); err != nil {
			return nil, fmt.Errorf("scan webhook job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read webhook queue: %w", err)
	}
	return jobs, nil
}

func (w *Worker) requeueStale(ctx context.Context) error {
	query := `
		UPDATE webhook_queue
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`

	tag, err := w.db.Exec(ctx, query, time.Now().Add(-StaleAfter))
	if err != nil {
		return fmt.Errorf("requeue stale jobs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		w.logger.Warn("requeued stale webhook jobs", slog.Int64("count", n))
	}
	return nil
}

func (w *Worker) processJob(ctx context.Context, job *WebhookJob) error {
	webhook, err := w.service.GetWebhook(ctx, job.WebhookID)
	if err != nil {
		return w.markFailed(ctx, job.ID, fmt.Sprintf("webhook not found: %v", err))
	}

	if !webhook.Enabled {
		return w.markFailed(ctx, job.ID, "webhook disabled")
	}

	if !json.Valid(job.Payload) {
		return w.markFailed(ctx, job.ID, "invalid payload")
	}

	if err := w.service.deliver(ctx, webhook, job.EventType, job.Payload); err != nil {
		return w.scheduleRetry(ctx, job, err.Error())
	}

	if err := w.service.updateLastTriggered(ctx, webhook.ID); err != nil {
		w.logger.Warn("failed to update webhook last trigger",
			slog.String("webhook_id", webhook.ID.String()),
			slog.Any("error", err),
		)
	}
	return w.markDelivered(ctx, job.ID)
}

func (w *Worker) scheduleRetry(ctx context.Context, job *WebhookJob, errorMsg string) error {
	if job.Attempts >= job.MaxAttempts {
		return w.markFailed(ctx, job.ID, errorMsg)
	}

	nextRetry := time.Now().Add(RetryDelay(job.Attempts))

	query := `
		UPDATE webhook_queue
		SET attempts = attempts + 1,
		    next_retry_at = $1,
		    last_error = $2,
		    status = 'pending',
		    updated_at = NOW()
		WHERE id = $3
	`

	if _, err := w.db.Exec(ctx, query, nextRetry, errorMsg, job.ID); err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}

	w.logger.Info("webhook job scheduled for retry",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempts", job.Attempts+1),
		slog.Time("next_retry", nextRetry),
	)
	return nil
}

func (w *Worker) markDelivered(ctx context.Context, jobID uuid.UUID) error {
	return w.finish(ctx, jobID, JobDelivered, "")
}

func (w *Worker) markFailed(ctx context.Context, jobID uuid.UUID, errorMsg string) error {
	return w.finish(ctx, jobID, JobFailed, errorMsg)
}

func (w *Worker) finish(ctx context.Context, jobID uuid.UUID, status, errorMsg string) error {
	query := `
		UPDATE webhook_queue
		SET status = $1,
		    last_error = COALESCE(NULLIF($2, ''), last_error),
		    updated_at = NOW()
		WHERE id = $3
	`

	if _, err := w.db.Exec(ctx, query, status, errorMsg, jobID); err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}

	if status == JobFailed {
		w.logger.Warn("webhook job failed", slog.String("job_id", jobID.String()), slog.String("error", errorMsg))
	} else {
		w.logger.Debug("webhook job delivered", slog.String("job_id", jobID.String()))
	}
	return nil
}

// CleanupExpired deletes delivered and failed jobs older than Retention
func (w *Worker) CleanupExpired(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM webhook_queue
		WHERE status IN ('delivered', 'failed') AND updated_at < $1
	`

	tag, err := w.db.Exec(ctx, query, time.Now().Add(-Retention))
	if err != nil {
		return 0, fmt.Errorf("cleanup webhook queue: %w", err)
	}
	return tag.RowsAffected(), nil
}
