package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// DB interface for database operations
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RateLimiter counts session starts per caller in PostgreSQL, so the limit
// holds across API replicas
type RateLimiter struct {
	db     DB
	window time.Duration
}

// NewRateLimiter creates a rate limiter whose windows last window
func NewRateLimiter(db DB, window time.Duration) *RateLimiter {
	return &RateLimiter{
		db:     db,
		window: window,
	}
}

func sessionKey(subject string) string {
	return "session_start:" + subject
}

// CheckSessionStart records one session start for subject and returns
// domain.ErrSessionRateLimitExceeded once more than limit starts fall in the
// current window. A limit <= 0 disables the check.
func (r *RateLimiter) CheckSessionStart(ctx context.Context, subject string, limit int) error {
	if limit <= 0 {
		return nil
	}

	now := time.Now()
	windowStart := now.Add(-r.window)

	// a counter whose window opened before windowStart starts over
	query := `
		WITH current_count AS (
			INSERT INTO rate_limit_counters (key, count, window_start, window_end)
			VALUES ($1, 1, $3, $3)
			ON CONFLICT (key)
			DO UPDATE SET
				count = CASE
					WHEN rate_limit_counters.window_start < $2 THEN 1
					ELSE rate_limit_counters.count + 1
				END,
				window_start = CASE
					WHEN rate_limit_counters.window_start < $2 THEN $3
					ELSE rate_limit_counters.window_start
				END,
				window_end = $3
			RETURNING count
		)
		SELECT count FROM current_count
	`

	var count int
	err := r.db.QueryRow(ctx, query, sessionKey(subject), windowStart, now).Scan(&count)
	if err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}

	if count > limit {
		return domain.ErrSessionRateLimitExceeded.WithError(
			fmt.Errorf("%d/%d session starts in %s", count, limit, r.window))
	}

	return nil
}

// CleanupExpired removes counters idle for more than an hour
func (r *RateLimiter) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM rate_limit_counters WHERE window_end < NOW() - INTERVAL '1 hour'`
	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// CurrentCount returns the starts counted in the current window
func (r *RateLimiter) CurrentCount(ctx context.Context, subject string) (int, error) {
	query := `
		SELECT count
		FROM rate_limit_counters
		WHERE key = $1 AND window_start > $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, sessionKey(subject), time.Now().Add(-r.window)).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current count: %w", err)
	}
	return count, nil
}

// Reset clears the counter of subject
func (r *RateLimiter) Reset(ctx context.Context, subject string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM rate_limit_counters WHERE key = $1`, sessionKey(subject))
	return err
}
