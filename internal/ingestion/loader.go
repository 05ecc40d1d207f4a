package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/incidentetl/internal/db"
	"github.com/rpattn/incidentetl/internal/repository"
)

// FailureKind classifies why a batch load rolled back.
type FailureKind string

const (
	FailureConnection FailureKind = "connection"
	FailureConflict   FailureKind = "conflict"
	FailureStatement  FailureKind = "statement"
	FailureTimeout    FailureKind = "timeout"
	FailureCommit     FailureKind = "commit"
)

// BatchError reports a rolled back load. Index is the position of the failing
// record in the loaded slice, or -1 when no single record is to blame.
type BatchError struct {
	Kind   FailureKind
	Index  int
	Row    int
	Number string
	Err    error
}

func (e *BatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("batch %s failure: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("batch %s failure on row %d (number %q): %v", e.Kind, e.Row, e.Number, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Loader inserts validated records in a single all-or-nothing transaction.
type Loader struct {
	db      db.Beginner
	timeout time.Duration
}

// NewLoader returns a loader. A zero timeout leaves the caller's deadline alone.
func NewLoader(b db.Beginner, timeout time.Duration) *Loader {
	return &Loader{db: b, timeout: timeout}
}

// Load inserts every candidate or none. It returns the number of inserted rows
// or a *BatchError after rollback.
func (l *Loader) Load(ctx context.Context, candidates []Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	var failed *BatchError
	err := db.WithTx(ctx, l.db, func(tx pgx.Tx) error {
		for idx, c := range candidates {
			if _, err := tx.Exec(ctx, repository.InsertIncidentSQL, c.Record.Values()...); err != nil {
				failed = &BatchError{
					Kind:   classifyStatementError(ctx, err),
					Index:  idx,
					Row:    c.RowNumber,
					Number: c.Record.Number,
					Err:    err,
				}
				return failed
			}
		}
		return nil
	})
	if err == nil {
		return len(candidates), nil
	}
	if failed != nil {
		return 0, failed
	}

	kind := FailureConnection
	var commitErr *db.CommitError
	switch {
	case isDeadline(ctx, err):
		kind = FailureTimeout
	case errors.As(err, &commitErr):
		kind = FailureCommit
	}
	return 0, &BatchError{Kind: kind, Index: -1, Err: err}
}

func classifyStatementError(ctx context.Context, err error) FailureKind {
	switch {
	case db.IsUniqueViolation(err):
		return FailureConflict
	case isDeadline(ctx, err):
		return FailureTimeout
	default:
		return FailureStatement
	}
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
