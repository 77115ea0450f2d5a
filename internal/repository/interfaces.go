package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
)

// PgxPool is the subset of *pgxpool.Pool used by repositories (and implemented by pgxmock)
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ReferenceRepositoryInterface defines operations for reference people
type ReferenceRepositoryInterface interface {
	Create(ctx context.Context, ref *domain.Reference) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Reference, error)
	List(ctx context.Context) ([]domain.ReferenceView, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionRepositoryInterface defines operations for finder sessions
type SessionRepositoryInterface interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	List(ctx context.Context, limit int) ([]domain.Session, error)
	UpdatePresence(ctx context.Context, id uuid.UUID, present bool) error
	Finish(ctx context.Context, session *domain.Session) error
	FailRunning(ctx context.Context, reason string) (int64, error)
}

// DetectionRepositoryInterface defines operations for presence transitions
type DetectionRepositoryInterface interface {
	Create(ctx context.Context, detection *domain.Detection) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]domain.Detection, error)
}

// SnapshotRepositoryInterface stores the latest annotated match frame per session
type SnapshotRepositoryInterface interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Get(ctx context.Context, sessionID uuid.UUID) (*Snapshot, error)
}
