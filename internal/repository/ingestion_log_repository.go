package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/incidentetl/internal/domain"
)

type ingestionLogRepository struct {
	db DBTX
}

// NewIngestionLogRepository wires a repository backed by pgxpool.
func NewIngestionLogRepository(conn DBTX) IngestionLogRepository {
	return &ingestionLogRepository{db: conn}
}

func (r *ingestionLogRepository) Record(ctx context.Context, entry domain.IngestionLogEntry) error {
	if r.db == nil {
		return fmt.Errorf("ingestion log repository not initialized")
	}

	var rowNumber any
	if entry.RowNumber != nil {
		rowNumber = *entry.RowNumber
	}

	_, err := r.db.Exec(
		ctx,
		`INSERT INTO ingestion_logs (batch_id, file_name, row_number, incident_number, kind, message)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.BatchID,
		entry.FileName,
		rowNumber,
		entry.IncidentNumber,
		string(entry.Kind),
		entry.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to record ingestion log: %w", err)
	}

	return nil
}

func (r *ingestionLogRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.IngestionLogEntry, error) {
	if r.db == nil {
		return nil, fmt.Errorf("ingestion log repository not initialized")
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT id, batch_id, file_name, row_number, incident_number, kind, message, created_at
		 FROM ingestion_logs
		 WHERE batch_id = $1
		 ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry     domain.IngestionLogEntry
			kind      string
			rowNumber pgtype.Int4
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.BatchID,
			&entry.FileName,
			&rowNumber,
			&entry.IncidentNumber,
			&kind,
			&entry.Message,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}

		entry.Kind = domain.IngestionLogKind(kind)
		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", rowsErr)
	}

	return logs, nil
}
