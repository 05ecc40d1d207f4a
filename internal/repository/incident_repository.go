package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/incidentetl/internal/db"
	"github.com/rpattn/incidentetl/internal/domain"
)

// IncidentColumns is the incidents column list in domain.Fields order.
var IncidentColumns = func() string {
	names := make([]string, len(domain.Fields))
	for i, f := range domain.Fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}()

// InsertIncidentSQL inserts one incident; arguments come from Incident.Values.
var InsertIncidentSQL = func() string {
	placeholders := make([]string, len(domain.Fields))
	for i, f := range domain.Fields {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if f.IsTimestamp() {
			placeholders[i] += "::TIMESTAMP"
		}
	}
	return fmt.Sprintf("INSERT INTO incidents (%s) VALUES (%s)", IncidentColumns, strings.Join(placeholders, ", "))
}()

var (
	selectIncidentsSQL = "SELECT " + IncidentColumns + " FROM incidents ORDER BY number"
	selectIncidentSQL  = "SELECT " + IncidentColumns + " FROM incidents WHERE number = $1"
	deleteIncidentSQL  = "DELETE FROM incidents WHERE number = $1"
)

type incidentRepository struct {
	db DBTX
}

// NewIncidentRepository wires a repository backed by a pgx pool.
func NewIncidentRepository(conn DBTX) IncidentRepository {
	return &incidentRepository{db: conn}
}

func (r *incidentRepository) List(ctx context.Context) ([]domain.Incident, error) {
	rows, err := r.db.Query(ctx, selectIncidentsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []domain.Incident{}
	for rows.Next() {
		incident, scanErr := scanIncident(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", scanErr)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}
	return incidents, nil
}

func (r *incidentRepository) Get(ctx context.Context, number string) (domain.Incident, error) {
	incident, err := scanIncident(r.db.QueryRow(ctx, selectIncidentSQL, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Incident{}, ErrNotFound
		}
		return domain.Incident{}, fmt.Errorf("failed to get incident: %w", err)
	}
	return incident, nil
}

func (r *incidentRepository) Create(ctx context.Context, incident domain.Incident) (domain.Incident, error) {
	if strings.TrimSpace(incident.Number) == "" {
		return domain.Incident{}, errors.New("incident number is required")
	}

	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, InsertIncidentSQL, incident.Values()...)
		return err
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return domain.Incident{}, fmt.Errorf("%w: %s", ErrConflict, incident.Number)
		}
		return domain.Incident{}, fmt.Errorf("failed to create incident: %w", err)
	}
	return incident, nil
}

func (r *incidentRepository) Update(ctx context.Context, number string, patch domain.IncidentPatch) (domain.Incident, error) {
	var updated domain.Incident
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if patch.Empty() {
			current, err := scanIncident(tx.QueryRow(ctx, selectIncidentSQL, number))
			updated = current
			return err
		}
		query, args := buildUpdate(number, patch)
		current, err := scanIncident(tx.QueryRow(ctx, query, args...))
		updated = current
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Incident{}, ErrNotFound
		}
		return domain.Incident{}, fmt.Errorf("failed to update incident: %w", err)
	}
	return updated, nil
}

func (r *incidentRepository) Delete(ctx context.Context, number string) error {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, deleteIncidentSQL, number)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete incident: %w", err)
	}
	return nil
}

// buildUpdate renders an UPDATE ... RETURNING for the staged patch fields.
func buildUpdate(number string, patch domain.IncidentPatch) (string, []any) {
	fields, values := patch.Changes()
	sets := make([]string, len(fields))
	for i, f := range fields {
		placeholder := fmt.Sprintf("$%d", i+1)
		if f.IsTimestamp() {
			placeholder += "::TIMESTAMP"
		}
		sets[i] = fmt.Sprintf("%s = %s", f, placeholder)
	}
	args := append(values, number)
	query := fmt.Sprintf(
		"UPDATE incidents SET %s WHERE number = $%d RETURNING %s",
		strings.Join(sets, ", "),
		len(args),
		IncidentColumns,
	)
	return query, args
}

func scanIncident(row pgx.Row) (domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.Number,
		&incident.State,
		&incident.Created,
		&incident.LastUpdate,
		&incident.IncidentCIType,
		&incident.AffectedUser,
		&incident.UserLocation,
		&incident.AssignmentGroup,
		&incident.AssignedTo,
		&incident.Urgency,
		&incident.Severity,
		&incident.CreatedBy,
		&incident.UpdatedBy,
	)
	return incident, err
}
