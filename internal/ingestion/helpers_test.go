package ingestion

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/incidentetl/internal/domain"
	"github.com/rpattn/incidentetl/internal/repository"
)

// memoryDB emulates the incidents table and its primary key for the loader.
type memoryDB struct {
	mu        sync.Mutex
	committed map[string][]any
	beginErr  error
	execErr   error
	failOn    string
	commitErr error
	begins    int
	rollbacks int
}

func newMemoryDB() *memoryDB {
	return &memoryDB{committed: map[string][]any{}}
}

func (m *memoryDB) Begin(context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &memoryTx{db: m, pending: map[string][]any{}}, nil
}

func (m *memoryDB) numbers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.committed))
	for number := range m.committed {
		out = append(out, number)
	}
	sort.Strings(out)
	return out
}

type memoryTx struct {
	pgx.Tx
	db      *memoryDB
	pending map[string][]any
}

func (t *memoryTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if sql != repository.InsertIncidentSQL {
		return pgconn.CommandTag{}, errors.New("unexpected statement")
	}
	number, _ := args[0].(string)
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.execErr != nil && (t.db.failOn == "" || t.db.failOn == number) {
		return pgconn.CommandTag{}, t.db.execErr
	}
	if _, ok := t.db.committed[number]; ok {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"incidents_pkey\""}
	}
	if _, ok := t.pending[number]; ok {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"incidents_pkey\""}
	}
	t.pending[number] = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *memoryTx) Commit(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.commitErr != nil {
		return t.db.commitErr
	}
	for number, args := range t.pending {
		t.db.committed[number] = args
	}
	return nil
}

func (t *memoryTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	t.pending = map[string][]any{}
	return nil
}

type stubLogRepo struct {
	mu      sync.Mutex
	entries []domain.IngestionLogEntry
	err     error
}

func (s *stubLogRepo) Record(_ context.Context, entry domain.IngestionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubLogRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]domain.IngestionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.IngestionLogEntry
	for _, e := range s.entries {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *stubLogRepo) kinds() map[domain.IngestionLogKind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.IngestionLogKind]int{}
	for _, e := range s.entries {
		counts[e.Kind]++
	}
	return counts
}

var _ repository.IngestionLogRepository = (*stubLogRepo)(nil)

func strPtr(v string) *string { return &v }
