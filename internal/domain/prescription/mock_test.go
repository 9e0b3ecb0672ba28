package prescription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinref/clinref/internal/domain/authority"
	"github.com/clinref/clinref/internal/domain/member"
	"github.com/clinref/clinref/internal/domain/payer"
	"github.com/clinref/clinref/internal/ingest"
)

var errStore = errors.New("connection reset by peer")

type mockRepo struct {
	mu        sync.Mutex
	roots     map[uuid.UUID]*Prescription
	drugs     map[uuid.UUID]*DrugItem
	diagnoses map[uuid.UUID]*DiagnosisItem
	seq       int

	// failDrugAt makes the n-th AddDrug call (1-based) fail.
	failDrugAt int
	drugCalls  int

	// racePrimary hides stored primaries from HasPrimaryDiagnosis so the
	// partial unique index is the only guard left.
	racePrimary bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		roots:     make(map[uuid.UUID]*Prescription),
		drugs:     make(map[uuid.UUID]*DrugItem),
		diagnoses: make(map[uuid.UUID]*DiagnosisItem),
	}
}

func (m *mockRepo) tick() time.Time {
	m.seq++
	return time.Unix(int64(m.seq), 0).UTC()
}

func (m *mockRepo) Create(_ context.Context, p *Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	cp.Drugs, cp.Diagnoses = nil, nil
	m.roots[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.roots[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.roots[id]
	return ok, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roots[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.roots, id)
	for did, d := range m.drugs {
		if d.PrescriptionID == id {
			delete(m.drugs, did)
		}
	}
	for did, d := range m.diagnoses {
		if d.PrescriptionID == id {
			delete(m.diagnoses, did)
		}
	}
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Prescription
	for _, p := range m.roots {
		if f.ClinicianID != nil && p.ClinicianID != *f.ClinicianID {
			continue
		}
		if f.PatientReference != "" && p.PatientReference != f.PatientReference {
			continue
		}
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) AddDrug(_ context.Context, item *DrugItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drugCalls++
	if m.failDrugAt > 0 && m.drugCalls == m.failDrugAt {
		return errStore
	}
	item.ID = uuid.New()
	item.CreatedAt = m.tick()
	cp := *item
	m.drugs[item.ID] = &cp
	return nil
}

func (m *mockRepo) AddDiagnosis(_ context.Context, item *DiagnosisItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.diagnoses {
		if d.PrescriptionID != item.PrescriptionID {
			continue
		}
		if item.IsPrimary && d.IsPrimary {
			return &pgconn.PgError{Code: "23505", ConstraintName: PrimaryDiagnosisConstraint}
		}
		if d.Position == item.Position {
			return &pgconn.PgError{Code: "23505", ConstraintName: "uq_prescription_diagnosis_position"}
		}
	}
	item.ID = uuid.New()
	item.CreatedAt = m.tick()
	cp := *item
	m.diagnoses[item.ID] = &cp
	return nil
}

func (m *mockRepo) Drugs(_ context.Context, id uuid.UUID) ([]*DrugItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DrugItem
	for _, d := range m.drugs {
		if d.PrescriptionID == id {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *mockRepo) Diagnoses(_ context.Context, id uuid.UUID) ([]*DiagnosisItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DiagnosisItem
	for _, d := range m.diagnoses {
		if d.PrescriptionID == id {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *mockRepo) NextPosition(_ context.Context, table string, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 0
	switch table {
	case DrugTable:
		for _, d := range m.drugs {
			if d.PrescriptionID == id && d.Position >= next {
				next = d.Position + 1
			}
		}
	case DiagnosisTable:
		for _, d := range m.diagnoses {
			if d.PrescriptionID == id && d.Position >= next {
				next = d.Position + 1
			}
		}
	}
	return next, nil
}

func (m *mockRepo) HasPrimaryDiagnosis(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.racePrimary {
		return false, nil
	}
	for _, d := range m.diagnoses {
		if d.PrescriptionID == id && d.IsPrimary {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) DeleteDrug(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drugs[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.drugs, id)
	return nil
}

func (m *mockRepo) DeleteDiagnosis(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.diagnoses[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.diagnoses, id)
	return nil
}

// snapshotTx restores the repository contents when fn fails, standing in
// for a database rollback.
type snapshotTx struct {
	repo *mockRepo
}

func (t snapshotTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.repo.mu.Lock()
	roots := make(map[uuid.UUID]*Prescription, len(t.repo.roots))
	for k, v := range t.repo.roots {
		roots[k] = v
	}
	drugs := make(map[uuid.UUID]*DrugItem, len(t.repo.drugs))
	for k, v := range t.repo.drugs {
		drugs[k] = v
	}
	diagnoses := make(map[uuid.UUID]*DiagnosisItem, len(t.repo.diagnoses))
	for k, v := range t.repo.diagnoses {
		diagnoses[k] = v
	}
	t.repo.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.repo.mu.Lock()
		t.repo.roots, t.repo.drugs, t.repo.diagnoses = roots, drugs, diagnoses
		t.repo.mu.Unlock()
		return err
	}
	return nil
}

// mockLookup knows a fixed set of reference rows per table and checks
// prescription numbers against the repository.
type mockLookup struct {
	repo *mockRepo
	rows map[string]map[uuid.UUID]bool
}

func (l *mockLookup) add(table string) uuid.UUID {
	if l.rows[table] == nil {
		l.rows[table] = make(map[uuid.UUID]bool)
	}
	id := uuid.New()
	l.rows[table][id] = true
	return id
}

func (l *mockLookup) KeyExists(_ context.Context, _ string, key ingest.Key, exclude uuid.UUID) (bool, error) {
	l.repo.mu.Lock()
	defer l.repo.mu.Unlock()
	for id, p := range l.repo.roots {
		if id != exclude && ingest.Fold(p.PrescriptionNumber) == ingest.Fold(key.Value) {
			return true, nil
		}
	}
	return false, nil
}

func (l *mockLookup) RefExists(_ context.Context, ref ingest.Ref) (bool, error) {
	if ref.ID == nil {
		return true, nil
	}
	return l.rows[ref.Target.Table][*ref.ID], nil
}

type recordedBatch struct {
	entity, outcome string
	rows            int
}

type mockRecorder struct {
	batches []recordedBatch
}

func (r *mockRecorder) ObserveBatch(entity, outcome string, rows int, _ time.Duration) {
	r.batches = append(r.batches, recordedBatch{entity: entity, outcome: outcome, rows: rows})
}

type fixture struct {
	svc       *Service
	repo      *mockRepo
	lookup    *mockLookup
	recorder  *mockRecorder
	clinician uuid.UUID
	drugs     []uuid.UUID
	diagnoses []uuid.UUID
	payer     uuid.UUID
	authority uuid.UUID
}

func newFixture() *fixture {
	repo := newMockRepo()
	lookup := &mockLookup{repo: repo, rows: make(map[string]map[uuid.UUID]bool)}
	rec := &mockRecorder{}
	f := &fixture{
		svc:       NewService(repo, lookup, snapshotTx{repo: repo}, WithRecorder(rec)),
		repo:      repo,
		lookup:    lookup,
		recorder:  rec,
		clinician: lookup.add(member.ClinicianTable),
		payer:     lookup.add(payer.Table),
		authority: lookup.add(authority.Table),
	}
	for i := 0; i < 3; i++ {
		f.drugs = append(f.drugs, lookup.add(member.DrugTable))
		f.diagnoses = append(f.diagnoses, lookup.add(member.DiagnosisTable))
	}
	f.svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

// payload builds a prescription with nDrugs drug and nDiag diagnosis line
// items, the first diagnosis primary.
func (f *fixture) payload(number string, nDrugs, nDiag int) *Prescription {
	p := &Prescription{
		PrescriptionNumber: number,
		PatientReference:   "MRN-1001",
		ClinicianID:        f.clinician,
		PayerID:            &f.payer,
		HealthAuthorityID:  &f.authority,
	}
	for i := 0; i < nDrugs; i++ {
		p.Drugs = append(p.Drugs, &DrugItem{DrugID: f.drugs[i], Quantity: 10 * (i + 1)})
	}
	for i := 0; i < nDiag; i++ {
		p.Diagnoses = append(p.Diagnoses, &DiagnosisItem{DiagnosisID: f.diagnoses[i], IsPrimary: i == 0})
	}
	return p
}
