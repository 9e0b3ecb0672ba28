package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

const (
	entity          = "prescription"
	drugEntity      = "prescription drug"
	diagnosisEntity = "prescription diagnosis"
)

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithRecorder(r ingest.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service assembles and maintains prescription aggregates.
type Service struct {
	repo     Repository
	lookup   ingest.Lookup
	tx       ingest.TxRunner
	logger   zerolog.Logger
	recorder ingest.Recorder
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(repo Repository, lookup ingest.Lookup, tx ingest.TxRunner, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		lookup: lookup,
		tx:     tx,
		logger: zerolog.Nop(),
		tracer: otel.Tracer("github.com/clinref/clinref/internal/domain/prescription"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the payload, resolves every reference, then writes the
// root and its line items and reads the aggregate back, all in one
// transaction. Line item positions follow payload order.
func (s *Service) Create(ctx context.Context, p *Prescription) (*Prescription, error) {
	ctx, span := s.tracer.Start(ctx, "prescription.create")
	defer span.End()

	start := time.Now()
	created, err := s.create(ctx, p)

	rows := 0
	outcome := ingest.OutcomeCommitted
	event := s.logger.Info()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome = ingest.OutcomeRejected
		event = s.logger.Warn().Err(err)
		if apperr.Is(err, apperr.KindTransient) {
			outcome = ingest.OutcomeFailed
			event = s.logger.Error().Err(err)
		}
	} else {
		rows = 1 + len(created.Drugs) + len(created.Diagnoses)
		span.SetAttributes(
			attribute.String("prescription.id", created.ID.String()),
			attribute.Int("prescription.drugs", len(created.Drugs)),
			attribute.Int("prescription.diagnoses", len(created.Diagnoses)),
		)
	}
	if s.recorder != nil {
		s.recorder.ObserveBatch(entity, outcome, rows, time.Since(start))
	}
	event.Str("entity", entity).Str("outcome", outcome).Int("rows", rows).Msg("prescription assembled")
	return created, err
}

func (s *Service) create(ctx context.Context, p *Prescription) (*Prescription, error) {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, apperr.Validation("invalid %s: %s", entity, err.Error())
	}
	if p.PrescribedAt.IsZero() {
		p.PrescribedAt = s.now().UTC()
	}

	var out *Prescription
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := ingest.Resolve(ctx, s.lookup, entity, -1, p.Refs()); err != nil {
			return err
		}
		if err := ingest.CheckUnique(ctx, s.lookup, entity, Table, -1, p.Keys(), uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return db.MapError(err, entity)
		}
		for i, d := range p.Drugs {
			d.PrescriptionID = p.ID
			d.Position = i
			if err := s.repo.AddDrug(ctx, d); err != nil {
				return db.MapError(err, drugEntity)
			}
		}
		for i, d := range p.Diagnoses {
			d.PrescriptionID = p.ID
			d.Position = i
			if err := s.repo.AddDiagnosis(ctx, d); err != nil {
				return db.MapError(err, diagnosisEntity)
			}
		}
		var err error
		out, err = s.load(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap("failed to create "+entity, err)
	}
	return out, nil
}

// Get returns the aggregate with its line items in position order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, db.MapError(err, entity)
	}
	drugs, err := s.repo.Drugs(ctx, id)
	if err != nil {
		return nil, db.MapError(err, drugEntity)
	}
	diagnoses, err := s.repo.Diagnoses(ctx, id)
	if err != nil {
		return nil, db.MapError(err, diagnosisEntity)
	}
	p.Drugs = drugs
	p.Diagnoses = diagnoses
	if p.Drugs == nil {
		p.Drugs = []*DrugItem{}
	}
	if p.Diagnoses == nil {
		p.Diagnoses = []*DiagnosisItem{}
	}
	return p, nil
}

// List returns roots only; fetch one prescription for its line items.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, db.MapError(err, entity)
	}
	return items, total, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return db.MapError(s.repo.Delete(ctx, id), entity)
}

// AddDrug appends one drug line item to an existing prescription. It runs
// outside any transaction.
func (s *Service) AddDrug(ctx context.Context, item *DrugItem) (*DrugItem, error) {
	if err := item.Validate(); err != nil {
		return nil, apperr.Validation("invalid %s: %s", drugEntity, err.Error())
	}
	if err := s.requireParent(ctx, item.PrescriptionID); err != nil {
		return nil, err
	}
	ref := ingest.Ref{Field: "drug_id", ID: &item.DrugID, Target: drugTarget}
	if err := ingest.Resolve(ctx, s.lookup, drugEntity, -1, []ingest.Ref{ref}); err != nil {
		return nil, err
	}
	pos, err := s.repo.NextPosition(ctx, DrugTable, item.PrescriptionID)
	if err != nil {
		return nil, db.MapError(err, drugEntity)
	}
	item.Position = pos
	if err := s.repo.AddDrug(ctx, item); err != nil {
		return nil, lineItemError(err, drugEntity, item.PrescriptionID)
	}
	return item, nil
}

// AddDiagnosis appends one diagnosis line item to an existing
// prescription. A second primary diagnosis is a conflict.
func (s *Service) AddDiagnosis(ctx context.Context, item *DiagnosisItem) (*DiagnosisItem, error) {
	if err := item.Validate(); err != nil {
		return nil, apperr.Validation("invalid %s: %s", diagnosisEntity, err.Error())
	}
	if err := s.requireParent(ctx, item.PrescriptionID); err != nil {
		return nil, err
	}
	ref := ingest.Ref{Field: "diagnosis_id", ID: &item.DiagnosisID, Target: diagnosisTarget}
	if err := ingest.Resolve(ctx, s.lookup, diagnosisEntity, -1, []ingest.Ref{ref}); err != nil {
		return nil, err
	}
	if item.IsPrimary {
		has, err := s.repo.HasPrimaryDiagnosis(ctx, item.PrescriptionID)
		if err != nil {
			return nil, db.MapError(err, diagnosisEntity)
		}
		if has {
			return nil, apperr.Conflict("%s %s already has a primary diagnosis", entity, item.PrescriptionID)
		}
	}
	pos, err := s.repo.NextPosition(ctx, DiagnosisTable, item.PrescriptionID)
	if err != nil {
		return nil, db.MapError(err, diagnosisEntity)
	}
	item.Position = pos
	if err := s.repo.AddDiagnosis(ctx, item); err != nil {
		return nil, lineItemError(err, diagnosisEntity, item.PrescriptionID)
	}
	return item, nil
}

func (s *Service) RemoveDrug(ctx context.Context, id uuid.UUID) error {
	return db.MapError(s.repo.DeleteDrug(ctx, id), drugEntity)
}

func (s *Service) RemoveDiagnosis(ctx context.Context, id uuid.UUID) error {
	return db.MapError(s.repo.DeleteDiagnosis(ctx, id), diagnosisEntity)
}

// lineItemError maps unique violations raised by the line item indexes.
// Those only fire when a concurrent append won the race past the checks
// above.
func lineItemError(err error, itemEntity string, prescriptionID uuid.UUID) error {
	name, ok := db.IsUniqueViolation(err)
	if !ok {
		return db.MapError(err, itemEntity)
	}
	if name == PrimaryDiagnosisConstraint {
		return apperr.Conflict("%s %s already has a primary diagnosis", entity, prescriptionID)
	}
	return apperr.Conflict("%s %s was modified concurrently, retry", entity, prescriptionID)
}

func (s *Service) requireParent(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperr.Validation("prescription_id is required")
	}
	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return db.MapError(err, entity)
	}
	if !exists {
		return apperr.NotFound("%s %s not found", entity, id)
	}
	return nil
}
