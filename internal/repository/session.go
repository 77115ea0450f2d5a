package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

const sessionColumns = `id, reference_id, source, provider, tracker, threshold, detect_interval,
		status, present, stats, error, started_at, ended_at`

type SessionRepository struct {
	pool PgxPool
}

func NewSessionRepository(pool PgxPool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = domain.SessionRunning
	}

	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("marshal session stats: %w", err)
	}

	query := `
		INSERT INTO sessions (id, reference_id, source, provider, tracker, threshold, detect_interval, status, present, stats, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING started_at
	`

	err = r.pool.QueryRow(ctx, query,
		s.ID,
		s.ReferenceID,
		s.Source,
		s.Provider,
		s.Tracker,
		s.Threshold,
		s.DetectInterval,
		s.Status,
		s.Present,
		stats,
	).Scan(&s.StartedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) List(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) UpdatePresence(ctx context.Context, id uuid.UUID, present bool) error {
	result, err := r.pool.Exec(ctx, `UPDATE sessions SET present = $1 WHERE id = $2`, present, id)
	if err != nil {
		return fmt.Errorf("update session presence: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Finish stores the terminal status, final stats and end time
func (r *SessionRepository) Finish(ctx context.Context, s *domain.Session) error {
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("marshal session stats: %w", err)
	}
	if s.EndedAt == nil {
		now := time.Now().UTC()
		s.EndedAt = &now
	}

	var errMsg *string
	if s.Error != "" {
		errMsg = &s.Error
	}

	query := `
		UPDATE sessions
		SET status = $1, present = $2, stats = $3, error = $4, ended_at = $5
		WHERE id = $6
	`

	result, err := r.pool.Exec(ctx, query, s.Status, s.Present, stats, errMsg, *s.EndedAt, s.ID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// FailRunning marks sessions left running by a previous process as failed
func (r *SessionRepository) FailRunning(ctx context.Context, reason string) (int64, error) {
	query := `
		UPDATE sessions
		SET status = $1, error = $2, ended_at = NOW()
		WHERE status = $3
	`

	result, err := r.pool.Exec(ctx, query, domain.SessionFailed, reason, domain.SessionRunning)
	if err != nil {
		return 0, fmt.Errorf("fail running sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s      domain.Session
		stats  []byte
		errMsg *string
	)

	err := row.Scan(
		&s.ID,
		&s.ReferenceID,
		&s.Source,
		&s.Provider,
		&s.Tracker,
		&s.Threshold,
		&s.DetectInterval,
		&s.Status,
		&s.Present,
		&stats,
		&errMsg,
		&s.StartedAt,
		&s.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &s.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal session stats: %w", err)
		}
	}
	if errMsg != nil {
		s.Error = *errMsg
	}
	return &s, nil
}
