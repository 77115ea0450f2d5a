package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// Snapshot is an annotated JPEG of a frame where the person was found
type Snapshot struct {
	SessionID uuid.UUID
	Frame     int
	Score     float64
	Image     []byte
	CreatedAt time.Time
}

type SnapshotRepository struct {
	pool PgxPool
}

func NewSnapshotRepository(pool PgxPool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Save keeps only the latest snapshot of a session
func (r *SnapshotRepository) Save(ctx context.Context, s *Snapshot) error {
	query := `
		INSERT INTO snapshots (session_id, frame, score, image, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (session_id) DO UPDATE
		SET frame = EXCLUDED.frame,
		    score = EXCLUDED.score,
		    image = EXCLUDED.image,
		    created_at = NOW()
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query, s.SessionID, s.Frame, s.Score, s.Image).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) Get(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error) {
	query := `
		SELECT session_id, frame, score, image, created_at
		FROM snapshots
		WHERE session_id = $1
	`

	var s Snapshot
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(&s.SessionID, &s.Frame, &s.Score, &s.Image, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &s, nil
}
