package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

type DetectionRepository struct {
	pool PgxPool
}

func NewDetectionRepository(pool PgxPool) *DetectionRepository {
	return &DetectionRepository{pool: pool}
}

func (r *DetectionRepository) Create(ctx context.Context, d *domain.Detection) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}

	var box []byte
	if d.Box != nil {
		var err error
		if box, err = json.Marshal(d.Box); err != nil {
			return fmt.Errorf("marshal detection box: %w", err)
		}
	}

	query := `
		INSERT INTO detections (id, session_id, kind, frame, score, box, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query, d.ID, d.SessionID, d.Kind, d.Frame, d.Score, box).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create detection: %w", err)
	}
	return nil
}

// ListBySession returns transitions oldest first
func (r *DetectionRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Detection, error) {
	if limit <= 0 {
		limit = 500
	}

	query := `
		SELECT id, session_id, kind, frame, score, box, created_at
		FROM detections
		WHERE session_id = $1
		ORDER BY created_at ASC, frame ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	detections := make([]domain.Detection, 0)
	for rows.Next() {
		var (
			d   domain.Detection
			box []byte
		)
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Kind, &d.Frame, &d.Score, &box, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		if len(box) > 0 {
			d.Box = &domain.Box{}
			if err := json.Unmarshal(box, d.Box); err != nil {
				return nil, fmt.Errorf("unmarshal detection box: %w", err)
			}
		}
		detections = append(detections, d)
	}
	return detections, rows.Err()
}
