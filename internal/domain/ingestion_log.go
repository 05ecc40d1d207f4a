package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogKind classifies an ingestion log entry.
type IngestionLogKind string

const (
	IngestionLogWarning   IngestionLogKind = "warning"
	IngestionLogRejection IngestionLogKind = "rejection"
	IngestionLogFailure   IngestionLogKind = "failure"
)

// IngestionLogEntry captures row level issues that occur during ingestion.
type IngestionLogEntry struct {
	ID             int64            `json:"id"`
	BatchID        uuid.UUID        `json:"batch_id"`
	FileName       string           `json:"file_name"`
	RowNumber      *int             `json:"row_number,omitempty"`
	IncidentNumber *string          `json:"incident_number,omitempty"`
	Kind           IngestionLogKind `json:"kind"`
	Message        string           `json:"message"`
	CreatedAt      time.Time        `json:"created_at"`
}
