package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rpattn/incidentetl/internal/domain"
)

func candidatesFor(numbers ...string) []Candidate {
	out := make([]Candidate, len(numbers))
	for i, n := range numbers {
		out[i] = Candidate{RowNumber: i + 2, Record: domain.Incident{Number: n, State: strPtr("Open")}}
	}
	return out
}

func TestLoader_CommitsWholeBatch(t *testing.T) {
	store := newMemoryDB()
	loader := NewLoader(store, time.Second)

	inserted, err := loader.Load(context.Background(), candidatesFor("INC001", "INC002"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", inserted)
	}
	if diff := cmp.Diff([]string{"INC001", "INC002"}, store.numbers()); diff != "" {
		t.Fatalf("stored numbers mismatch (-want +got):\n%s", diff)
	}
}

func TestLoader_SecondLoadConflictsAndKeepsFirst(t *testing.T) {
	store := newMemoryDB()
	loader := NewLoader(store, 0)
	batch := candidatesFor("INC001", "INC002")

	if _, err := loader.Load(context.Background(), batch); err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	first := store.committed["INC001"]

	inserted, err := loader.Load(context.Background(), batch)
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 inserted, got %d", inserted)
	}
	if batchErr.Kind != FailureConflict || batchErr.Index != 0 || batchErr.Row != 2 || batchErr.Number != "INC001" {
		t.Fatalf("unexpected batch error: %+v", batchErr)
	}
	if store.rollbacks != 1 {
		t.Fatalf("expected 1 rollback, got %d", store.rollbacks)
	}
	if diff := cmp.Diff(first, store.committed["INC001"]); diff != "" {
		t.Fatalf("first-load values changed (-want +got):\n%s", diff)
	}
}

func TestLoader_MidBatchFailureRollsBackEverything(t *testing.T) {
	store := newMemoryDB()
	store.execErr = errors.New("value too long for type")
	store.failOn = "INC003"
	loader := NewLoader(store, 0)

	_, err := loader.Load(context.Background(), candidatesFor("INC001", "INC002", "INC003"))
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if batchErr.Kind != FailureStatement || batchErr.Index != 2 || batchErr.Number != "INC003" {
		t.Fatalf("unexpected batch error: %+v", batchErr)
	}
	if len(store.numbers()) != 0 {
		t.Fatalf("expected nothing committed, got %v", store.numbers())
	}
}

func TestLoader_ConnectionAndCommitFailures(t *testing.T) {
	store := newMemoryDB()
	store.beginErr = errors.New("dial tcp: connection refused")

	_, err := NewLoader(store, 0).Load(context.Background(), candidatesFor("INC001"))
	var batchErr *BatchError
	if !errors.As(err, &batchErr) || batchErr.Kind != FailureConnection || batchErr.Index != -1 {
		t.Fatalf("expected connection failure, got %v", err)
	}

	store = newMemoryDB()
	store.commitErr = errors.New("server closed the connection")
	_, err = NewLoader(store, 0).Load(context.Background(), candidatesFor("INC001"))
	if !errors.As(err, &batchErr) || batchErr.Kind != FailureCommit {
		t.Fatalf("expected commit failure, got %v", err)
	}
}

func TestLoader_TimeoutKind(t *testing.T) {
	store := newMemoryDB()
	store.execErr = context.DeadlineExceeded

	_, err := NewLoader(store, time.Second).Load(context.Background(), candidatesFor("INC001"))
	var batchErr *BatchError
	if !errors.As(err, &batchErr) || batchErr.Kind != FailureTimeout {
		t.Fatalf("expected timeout failure, got %v", err)
	}
}

func TestLoader_EmptyBatchSkipsTransaction(t *testing.T) {
	store := newMemoryDB()
	inserted, err := NewLoader(store, 0).Load(context.Background(), nil)
	if err != nil || inserted != 0 {
		t.Fatalf("Load(nil) = %d, %v", inserted, err)
	}
	if store.begins != 0 {
		t.Fatalf("expected no transaction, got %d begins", store.begins)
	}
}
