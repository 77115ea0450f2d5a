package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

type ReferenceRepository struct {
	pool PgxPool
}

func NewReferenceRepository(pool PgxPool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// Create stores the reference and its embeddings in one transaction
func (r *ReferenceRepository) Create(ctx context.Context, ref *domain.Reference) error {
	if ref.ID == uuid.Nil {
		ref.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create reference: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO reference_people (id, name, provider, image, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING created_at
	`, ref.ID, ref.Name, ref.Provider, ref.Image).Scan(&ref.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReferenceExists
		}
		return fmt.Errorf("create reference: %w", err)
	}

	for i, embedding := range ref.Embeddings {
		_, err := tx.Exec(ctx, `
			INSERT INTO reference_embeddings (reference_id, position, embedding)
			VALUES ($1, $2, $3)
		`, ref.ID, i, toVector(embedding))
		if err != nil {
			return fmt.Errorf("create reference embedding %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create reference: %w", err)
	}
	return nil
}

func (r *ReferenceRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reference, error) {
	query := `
		SELECT id, name, provider, image, created_at
		FROM reference_people
		WHERE id = $1
	`

	var ref domain.Reference
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ref.ID,
		&ref.Name,
		&ref.Provider,
		&ref.Image,
		&ref.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reference: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT embedding
		FROM reference_embeddings
		WHERE reference_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get reference embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var vec *pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, fmt.Errorf("scan reference embedding: %w", err)
		}
		if e := fromVector(vec); e != nil {
			ref.Embeddings = append(ref.Embeddings, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get reference embeddings: %w", err)
	}

	return &ref, nil
}

func (r *ReferenceRepository) List(ctx context.Context) ([]domain.ReferenceView, error) {
	query := `
		SELECT r.id, r.name, r.provider, COUNT(e.position), r.created_at
		FROM reference_people r
		LEFT JOIN reference_embeddings e ON e.reference_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	views := make([]domain.ReferenceView, 0)
	for rows.Next() {
		var v domain.ReferenceView
		if err := rows.Scan(&v.ID, &v.Name, &v.Provider, &v.Embeddings, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (r *ReferenceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM reference_people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.ErrReferenceNotFound
	}

	return nil
}
