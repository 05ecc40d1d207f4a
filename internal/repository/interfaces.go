package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/incidentetl/internal/domain"
)

var (
	// ErrNotFound is returned when no incident carries the requested number.
	ErrNotFound = errors.New("incident not found")
	// ErrConflict is returned when an incident number already exists.
	ErrConflict = errors.New("incident number already exists")
)

// IncidentRepository defines CRUD access to the incidents table.
type IncidentRepository interface {
	List(ctx context.Context) ([]domain.Incident, error)
	Get(ctx context.Context, number string) (domain.Incident, error)
	Create(ctx context.Context, incident domain.Incident) (domain.Incident, error)
	Update(ctx context.Context, number string, patch domain.IncidentPatch) (domain.Incident, error)
	Delete(ctx context.Context, number string) error
}

// IngestionLogRepository stores per-batch ingestion diagnostics.
type IngestionLogRepository interface {
	Record(ctx context.Context, entry domain.IngestionLogEntry) error
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.IngestionLogEntry, error)
}

// DBTX is the subset of *pgxpool.Pool the repositories use.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
