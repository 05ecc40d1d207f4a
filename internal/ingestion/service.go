package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rpattn/incidentetl/internal/archive"
	"github.com/rpattn/incidentetl/internal/domain"
	"github.com/rpattn/incidentetl/internal/export"
	"github.com/rpattn/incidentetl/internal/logging"
	"github.com/rpattn/incidentetl/internal/metrics"
	"github.com/rpattn/incidentetl/internal/repository"
)

// BatchLoader persists validated candidates. *Loader implements it.
type BatchLoader interface {
	Load(ctx context.Context, candidates []Candidate) (int, error)
}

// BatchStatus is the final state of an ingestion batch.
type BatchStatus string

const (
	StatusCommitted  BatchStatus = "committed"
	StatusRolledBack BatchStatus = "rolled_back"
	StatusDryRun     BatchStatus = "dry_run"
	StatusEmpty      BatchStatus = "empty"
)

// Options configures the pipeline stages.
type Options struct {
	Profile    Profile
	OnConflict ConflictPolicy
	Layouts    []string
	Location   *time.Location
	Workers    int
}

// Request is one upload to ingest.
type Request struct {
	FileName string
	Data     []byte
	// Profile overrides Options.Profile when set.
	Profile Profile
	DryRun  bool
}

// Batch is the outcome of every stage before the load.
type Batch struct {
	ID        uuid.UUID
	FileName  string
	Mapping   HeaderMapping
	TotalRows int
	Accepted  []Candidate
	Rejected  []Rejection
	Warnings  []Warning
}

// Records returns the accepted incidents in source order.
func (b Batch) Records() []domain.Incident {
	records := make([]domain.Incident, len(b.Accepted))
	for i, c := range b.Accepted {
		records[i] = c.Record
	}
	return records
}

// Failure describes why a batch rolled back.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Row     int         `json:"row,omitempty"`
	Number  string      `json:"number,omitempty"`
	Message string      `json:"message"`
}

// Summary is the structured result of an upload.
type Summary struct {
	BatchID   uuid.UUID   `json:"batch_id"`
	FileName  string      `json:"file_name"`
	Profile   Profile     `json:"profile"`
	Status    BatchStatus `json:"status"`
	TotalRows int         `json:"total_rows"`
	Inserted  int         `json:"inserted"`
	Rejected  []Rejection `json:"rejected"`
	Warnings  []Warning   `json:"warnings"`
	Failure   *Failure    `json:"failure"`
}

// Service runs uploads through reader, normalizer, coercer, validator and loader.
type Service struct {
	loader  BatchLoader
	logs    repository.IngestionLogRepository
	opts    Options
	coercer *Coercer
	archive archive.Store
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
	newID   func() uuid.UUID
}

// Option customises a Service.
type Option func(*Service)

// WithArchive stores raw uploads and cleaned files.
func WithArchive(store archive.Store) Option {
	return func(s *Service) { s.archive = store }
}

// WithMetrics records batch outcomes.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = recorder }
}

// WithLogger replaces the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces uuid.New for batch ids.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService wires the pipeline. loader and logs may be nil for transform-only use.
func NewService(loader BatchLoader, logs repository.IngestionLogRepository, opts Options, options ...Option) *Service {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Profile == "" {
		opts.Profile = ProfileAuto
	}
	if opts.OnConflict == "" {
		opts.OnConflict = ConflictReject
	}
	s := &Service{
		loader:  loader,
		logs:    logs,
		opts:    opts,
		coercer: NewCoercer(opts.Layouts, opts.Location),
		logger:  logging.New("ingestion"),
		now:     time.Now,
		newID:   uuid.New,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Coercer exposes the configured coercer so API input shares the date rules.
func (s *Service) Coercer() *Coercer {
	return s.coercer
}

// Prepare reads, normalizes, coerces and validates an upload without touching
// the store. Read failures and header conflicts are returned as errors.
func (s *Service) Prepare(ctx context.Context, req Request) (Batch, error) {
	batch := Batch{ID: s.newID(), FileName: req.FileName}

	table, err := ReadTable(req.FileName, req.Data)
	if err != nil {
		return batch, err
	}
	batch.TotalRows = len(table.Rows)
	if table.Substituted > 0 {
		batch.Warnings = append(batch.Warnings, batchWarning("%d byte(s) were not valid UTF-8 and were decoded as Windows-1252", table.Substituted))
	}

	profile := s.opts.Profile
	if req.Profile != "" {
		profile = req.Profile
	}
	mapping, err := ResolveHeaders(table.Headers, NormalizerOptions{Profile: profile, OnConflict: s.opts.OnConflict})
	if err != nil {
		return batch, err
	}
	batch.Mapping = mapping
	batch.Warnings = append(batch.Warnings, mapping.Warnings...)

	candidates, err := s.coerceRows(ctx, table.Rows, mapping)
	if err != nil {
		return batch, err
	}
	for _, c := range candidates {
		batch.Warnings = append(batch.Warnings, c.Warnings...)
	}

	batch.Accepted, batch.Rejected = ValidateBatch(candidates)
	return batch, nil
}

// coerceRows normalizes and coerces rows in contiguous chunks on a bounded
// errgroup. Output order matches input order.
func (s *Service) coerceRows(ctx context.Context, rows []SourceRow, mapping HeaderMapping) ([]Candidate, error) {
	candidates := make([]Candidate, len(rows))
	if len(rows) == 0 {
		return candidates, nil
	}

	workers := s.opts.Workers
	if workers > len(rows) {
		workers = len(rows)
	}
	chunk := (len(rows) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				candidates[i] = s.coercer.Coerce(Normalize(rows[i], mapping))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// Ingest runs the full pipeline. The Summary is populated whenever the file
// was readable; a non-nil error alongside it means the batch rolled back
// (*BatchError) or never reached the loader.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	started := s.now()

	batch, err := s.Prepare(ctx, req)
	summary := Summary{
		BatchID:   batch.ID,
		FileName:  req.FileName,
		Profile:   batch.Mapping.Profile,
		TotalRows: batch.TotalRows,
		Rejected:  nonNil(batch.Rejected),
		Warnings:  nonNil(batch.Warnings),
	}
	if err != nil {
		s.logger.Warn("upload could not be prepared",
			slog.String("batch_id", batch.ID.String()),
			slog.String("file", req.FileName),
			slog.Any("error", err),
		)
		s.recordFailure(ctx, batch, err)
		s.metrics.ObserveBatch("invalid", 0, 0, 0, s.now().Sub(started))
		return summary, err
	}

	s.archiveBatch(ctx, req, batch)

	var loadErr error
	switch {
	case req.DryRun:
		summary.Status = StatusDryRun
	case len(batch.Accepted) == 0:
		summary.Status = StatusEmpty
	case s.loader == nil:
		loadErr = errors.New("no loader configured")
		summary.Status = StatusRolledBack
		summary.Failure = &Failure{Kind: FailureConnection, Message: loadErr.Error()}
	default:
		summary.Inserted, loadErr = s.loader.Load(ctx, batch.Accepted)
		summary.Status = StatusCommitted
		if loadErr != nil {
			summary.Status = StatusRolledBack
			summary.Inserted = 0
			summary.Failure = failureFrom(loadErr)
		}
	}

	s.recordDiagnostics(ctx, batch, summary.Failure)
	s.metrics.ObserveBatch(string(summary.Status), summary.Inserted, len(summary.Rejected), len(summary.Warnings), s.now().Sub(started))

	attrs := []any{
		slog.String("batch_id", batch.ID.String()),
		slog.String("file", req.FileName),
		slog.String("profile", string(summary.Profile)),
		slog.String("status", string(summary.Status)),
		slog.Int("rows", summary.TotalRows),
		slog.Int("inserted", summary.Inserted),
		slog.Int("rejected", len(summary.Rejected)),
		slog.Int("warnings", len(summary.Warnings)),
	}
	if loadErr != nil {
		s.logger.Error("batch rolled back", append(attrs, slog.Any("error", loadErr))...)
		return summary, loadErr
	}
	s.logger.Info("batch processed", attrs...)
	return summary, nil
}

func failureFrom(err error) *Failure {
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		return &Failure{
			Kind:    batchErr.Kind,
			Row:     batchErr.Row,
			Number:  batchErr.Number,
			Message: batchErr.Error(),
		}
	}
	return &Failure{Kind: FailureStatement, Message: err.Error()}
}

// archiveBatch stores the raw upload and the cleaned CSV. Failures are logged only.
func (s *Service) archiveBatch(ctx context.Context, req Request, batch Batch) {
	if s.archive == nil {
		return
	}
	id := batch.ID.String()
	if err := s.archive.Put(ctx, archive.SourceKey(id, filepath.Ext(req.FileName)), req.Data, ""); err != nil {
		s.logger.Warn("failed to archive upload", slog.String("batch_id", id), slog.Any("error", err))
	}

	var clean bytes.Buffer
	if err := export.WriteCSV(&clean, batch.Records()); err != nil {
		s.logger.Warn("failed to render clean csv", slog.String("batch_id", id), slog.Any("error", err))
		return
	}
	if err := s.archive.Put(ctx, archive.CleanKey(id), clean.Bytes(), export.FormatCSV.ContentType()); err != nil {
		s.logger.Warn("failed to archive clean csv", slog.String("batch_id", id), slog.Any("error", err))
	}
}

// recordDiagnostics persists warnings, rejections and the failure of a batch.
func (s *Service) recordDiagnostics(ctx context.Context, batch Batch, failure *Failure) {
	if s.logs == nil {
		return
	}
	for _, w := range batch.Warnings {
		s.record(ctx, batch, domain.IngestionLogWarning, w.Row, nil, w.Message)
	}
	for _, r := range batch.Rejected {
		row := r.Row
		var number *string
		if r.Number != "" {
			n := r.Number
			number = &n
		}
		s.record(ctx, batch, domain.IngestionLogRejection, &row, number, r.Reason)
	}
	if failure != nil {
		var row *int
		var number *string
		if failure.Row > 0 {
			r := failure.Row
			row = &r
		}
		if failure.Number != "" {
			n := failure.Number
			number = &n
		}
		s.record(ctx, batch, domain.IngestionLogFailure, row, number, failure.Message)
	}
}

func (s *Service) recordFailure(ctx context.Context, batch Batch, err error) {
	if s.logs == nil {
		return
	}
	s.record(ctx, batch, domain.IngestionLogFailure, nil, nil, err.Error())
}

func (s *Service) record(ctx context.Context, batch Batch, kind domain.IngestionLogKind, row *int, number *string, message string) {
	entry := domain.IngestionLogEntry{
		BatchID:        batch.ID,
		FileName:       batch.FileName,
		RowNumber:      row,
		IncidentNumber: number,
		Kind:           kind,
		Message:        message,
	}
	if err := s.logs.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to record ingestion log",
			slog.String("batch_id", batch.ID.String()),
			slog.String("kind", string(kind)),
			slog.Any("error", fmt.Errorf("record %s: %w", kind, err)),
		)
	}
}

// BatchLog returns the persisted diagnostics of one batch.
func (s *Service) BatchLog(ctx context.Context, batchID uuid.UUID) ([]domain.IngestionLogEntry, error) {
	if s.logs == nil {
		return []domain.IngestionLogEntry{}, nil
	}
	return s.logs.ListByBatch(ctx, batchID)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
