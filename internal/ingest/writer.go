package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

// Outcome labels for batch metrics.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Spec configures the pipeline for one entity.
type Spec[T any] struct {
	// Entity names the row kind in messages, e.g. "drug list".
	Entity string
	// Table is the store table identity keys are looked up in.
	Table string
	// Normalize canonicalizes a candidate in place before validation, so
	// that stored identity values match their folded keys. May be nil.
	Normalize func(T)
	// Validate checks required fields and value ranges of one candidate.
	Validate func(T) error
	// Keys returns the identity keys of a candidate.
	Keys func(T) []Key
	// Refs returns the references of a candidate. May be nil.
	Refs func(T) []Ref
}

// Store persists one entity. Implementations resolve a transaction bound
// to ctx.
type Store[T any] interface {
	InsertBatch(ctx context.Context, items []T) ([]T, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, id uuid.UUID, item T) (T, error)
}

// TxRunner runs fn inside one store transaction. *db.TxManager satisfies it.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Recorder observes batch outcomes.
type Recorder interface {
	ObserveBatch(entity, outcome string, rows int, d time.Duration)
}

type options struct {
	maxBatch int
	logger   zerolog.Logger
	recorder Recorder
}

// Option customizes a Writer.
type Option func(*options)

// WithMaxBatch caps the number of candidates accepted per batch.
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// Writer runs the bulk ingestion pipeline for one entity.
type Writer[T any] struct {
	spec   Spec[T]
	store  Store[T]
	lookup Lookup
	tx     TxRunner
	opts   options
	tracer trace.Tracer
}

func NewWriter[T any](spec Spec[T], store Store[T], lookup Lookup, tx TxRunner, opts ...Option) *Writer[T] {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Writer[T]{
		spec:   spec,
		store:  store,
		lookup: lookup,
		tx:     tx,
		opts:   o,
		tracer: otel.Tracer("github.com/clinref/clinref/internal/ingest"),
	}
}

// Create validates the whole batch and inserts it atomically. Pure checks
// (required fields, batch size, intra-batch duplicates) run first; the
// hierarchy checks for all candidates, then the uniqueness checks, then
// the insert run inside one transaction. Any failure leaves no row of the
// batch behind.
func (w *Writer[T]) Create(ctx context.Context, items []T) ([]T, error) {
	ctx, span := w.tracer.Start(ctx, "ingest.create", trace.WithAttributes(
		attribute.String("ingest.entity", w.spec.Entity),
		attribute.Int("ingest.batch_size", len(items)),
	))
	defer span.End()

	start := time.Now()
	created, err := w.create(ctx, items)
	w.observe(span, len(created), time.Since(start), err)
	return created, err
}

func (w *Writer[T]) create(ctx context.Context, items []T) ([]T, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("%s batch is empty", w.spec.Entity)
	}
	if w.opts.maxBatch > 0 && len(items) > w.opts.maxBatch {
		return nil, apperr.Validation("%s batch of %d exceeds the maximum of %d", w.spec.Entity, len(items), w.opts.maxBatch)
	}
	for i, item := range items {
		w.normalize(item)
		if err := w.validate(item, i); err != nil {
			return nil, err
		}
	}
	if err := CheckDuplicates(w.spec.Entity, items, w.spec.Keys); err != nil {
		return nil, err
	}

	var created []T
	err := w.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := ResolveAll(ctx, w.lookup, w.spec.Entity, items, w.spec.Refs); err != nil {
			return err
		}
		if err := CheckUniqueAll(ctx, w.lookup, w.spec.Entity, w.spec.Table, items, w.spec.Keys); err != nil {
			return err
		}
		rows, err := w.store.InsertBatch(ctx, items)
		if err != nil {
			return db.MapError(err, w.spec.Entity)
		}
		created = rows
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap("failed to create "+w.spec.Entity, err)
	}
	return created, nil
}

// Update replaces one row outside any transaction. The row must exist,
// may not reference itself, and its keys must not collide with any other
// row.
func (w *Writer[T]) Update(ctx context.Context, id uuid.UUID, item T) (T, error) {
	ctx, span := w.tracer.Start(ctx, "ingest.update", trace.WithAttributes(
		attribute.String("ingest.entity", w.spec.Entity),
		attribute.String("ingest.id", id.String()),
	))
	defer span.End()

	updated, err := w.update(ctx, id, item)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return updated, err
}

func (w *Writer[T]) update(ctx context.Context, id uuid.UUID, item T) (T, error) {
	var zero T
	w.normalize(item)
	if err := w.validate(item, -1); err != nil {
		return zero, err
	}
	exists, err := w.store.Exists(ctx, id)
	if err != nil {
		return zero, db.MapError(err, w.spec.Entity)
	}
	if !exists {
		return zero, apperr.NotFound("%s %s not found", w.spec.Entity, id)
	}

	var refs []Ref
	if w.spec.Refs != nil {
		refs = w.spec.Refs(item)
	}
	for _, ref := range refs {
		if ref.ID != nil && *ref.ID == id {
			return zero, apperr.Validation("%s %s cannot reference itself as %s", w.spec.Entity, id, ref.Field)
		}
	}
	if err := Resolve(ctx, w.lookup, w.spec.Entity, -1, refs); err != nil {
		return zero, err
	}
	if err := CheckUnique(ctx, w.lookup, w.spec.Entity, w.spec.Table, -1, w.spec.Keys(item), id); err != nil {
		return zero, err
	}

	updated, err := w.store.Update(ctx, id, item)
	if err != nil {
		return zero, db.MapError(err, w.spec.Entity)
	}
	return updated, nil
}

func (w *Writer[T]) normalize(item T) {
	if w.spec.Normalize != nil {
		w.spec.Normalize(item)
	}
}

func (w *Writer[T]) validate(item T, index int) error {
	if w.spec.Validate == nil {
		return nil
	}
	err := w.spec.Validate(item)
	if err == nil {
		return nil
	}
	if ae, ok := apperr.As(err); ok && ae.Kind != apperr.KindValidation {
		return err
	}
	return apperr.Validation("invalid %s%s: %s", w.spec.Entity, at(index), validationMessage(err))
}

func validationMessage(err error) string {
	if ae, ok := apperr.As(err); ok {
		return ae.Message
	}
	return err.Error()
}

func (w *Writer[T]) observe(span trace.Span, rows int, d time.Duration, err error) {
	outcome := OutcomeCommitted
	event := w.opts.logger.Info()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome = OutcomeRejected
		event = w.opts.logger.Warn().Err(err)
		if apperr.Is(err, apperr.KindTransient) {
			outcome = OutcomeFailed
			event = w.opts.logger.Error().Err(err)
		}
	}
	span.SetAttributes(attribute.String("ingest.outcome", outcome), attribute.Int("ingest.rows", rows))
	if w.opts.recorder != nil {
		w.opts.recorder.ObserveBatch(w.spec.Entity, outcome, rows, d)
	}
	event.
		Str("entity", w.spec.Entity).
		Str("outcome", outcome).
		Int("rows", rows).
		Dur("duration", d).
		Msg("ingest batch")
}
