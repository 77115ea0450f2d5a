package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Metric names stored per flush period
const (
	MetricFramesProcessed = "frames_processed"
	MetricDetections      = "detections"
	MetricTrackerUpdates  = "tracker_updates"
	MetricFoundFrames     = "found_frames"
	MetricTransitions     = "transitions"
	MetricBestScore       = "best_score"
)

// SessionMetric is one counter of one session over one flush period
type SessionMetric struct {
	SessionID   uuid.UUID `json:"session_id"`
	Name        string    `json:"name"`
	Value       float64   `json:"value"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	CreatedAt   time.Time `json:"created_at"`
}

// DB interface for database operations
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository handles database operations for metrics
type Repository struct {
	db DB
}

// NewRepository creates a new metrics repository
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// SaveMetric stores a metric, replacing the value of the same period
func (r *Repository) SaveMetric(ctx context.Context, metric *SessionMetric) error {
	query := `
		INSERT INTO session_metrics (
			session_id, metric_name, metric_value, period_start, period_end
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, metric_name, period_start)
		DO UPDATE SET
			metric_value = EXCLUDED.metric_value,
			period_end = EXCLUDED.period_end
	`

	_, err := r.db.Exec(ctx, query,
		metric.SessionID,
		metric.Name,
		metric.Value,
		metric.PeriodStart,
		metric.PeriodEnd,
	)
	return err
}

// ListBySession returns the metrics of a session, oldest period first. An
// empty name returns every metric.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID, name string) ([]*SessionMetric, error) {
	query := `
		SELECT session_id, metric_name, metric_value, period_start, period_end, created_at
		FROM session_metrics
		WHERE session_id = $1
		  AND ($2 = '' OR metric_name = $2)
		ORDER BY period_start ASC, metric_name ASC
	`

	rows, err := r.db.Query(ctx, query, sessionID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*SessionMetric
	for rows.Next() {
		metric := &SessionMetric{}
		err := rows.Scan(
			&metric.SessionID,
			&metric.Name,
			&metric.Value,
			&metric.PeriodStart,
			&metric.PeriodEnd,
			&metric.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, metric)
	}

	return metrics, rows.Err()
}

// DeleteOldMetrics removes metrics older than the specified duration
func (r *Repository) DeleteOldMetrics(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM session_metrics
		WHERE period_end < $1
	`

	cutoff := time.Now().Add(-olderThan)
	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}
