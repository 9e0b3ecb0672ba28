package member

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinref/clinref/internal/ingest"
)

// access exposes the fields the in-memory repository needs.
type access[T Member] struct {
	id     func(T) *uuid.UUID
	status func(T) *string
	listID func(T) uuid.UUID
	field  func(T, string) string
	clone  func(T) T
}

var diagnosisAccess = access[*Diagnosis]{
	id:     func(d *Diagnosis) *uuid.UUID { return &d.ID },
	status: func(d *Diagnosis) *string { return &d.Status },
	listID: func(d *Diagnosis) uuid.UUID { return d.ListID },
	field: func(d *Diagnosis, f string) string {
		if f == "icd_code" {
			return d.ICDCode
		}
		return d.DiagnosisCode
	},
	clone: func(d *Diagnosis) *Diagnosis { cp := *d; return &cp },
}

var drugAccess = access[*Drug]{
	id:     func(d *Drug) *uuid.UUID { return &d.ID },
	status: func(d *Drug) *string { return &d.Status },
	listID: func(d *Drug) uuid.UUID { return d.ListID },
	field:  func(d *Drug, _ string) string { return d.NDCDrugCode },
	clone:  func(d *Drug) *Drug { cp := *d; return &cp },
}

var clinicianAccess = access[*Clinician]{
	id:     func(c *Clinician) *uuid.UUID { return &c.ID },
	status: func(c *Clinician) *string { return &c.Status },
	listID: func(c *Clinician) uuid.UUID { return c.ListID },
	field: func(c *Clinician, f string) string {
		if f == "email" {
			return c.Email
		}
		return c.LicenseNumber
	},
	clone: func(c *Clinician) *Clinician { cp := *c; return &cp },
}

type mockRepo[T Member] struct {
	mu         sync.Mutex
	acc        access[T]
	rows       map[uuid.UUID]T
	order      []uuid.UUID
	referenced map[uuid.UUID]bool
}

func newMockRepo[T Member](acc access[T]) *mockRepo[T] {
	return &mockRepo[T]{acc: acc, rows: make(map[uuid.UUID]T), referenced: make(map[uuid.UUID]bool)}
}

func (m *mockRepo[T]) InsertBatch(_ context.Context, items []T) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, 0, len(items))
	for _, item := range items {
		cp := m.acc.clone(item)
		*m.acc.id(cp) = uuid.New()
		if *m.acc.status(cp) == "" {
			*m.acc.status(cp) = "active"
		}
		id := *m.acc.id(cp)
		m.rows[id] = cp
		m.order = append(m.order, id)
		out = append(out, m.acc.clone(cp))
	}
	return out, nil
}

func (m *mockRepo[T]) GetByID(_ context.Context, id uuid.UUID) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		var zero T
		return zero, pgx.ErrNoRows
	}
	return m.acc.clone(row), nil
}

func (m *mockRepo[T]) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok, nil
}

func (m *mockRepo[T]) Update(_ context.Context, id uuid.UUID, item T) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.rows[id]
	if !ok {
		var zero T
		return zero, pgx.ErrNoRows
	}
	cp := m.acc.clone(item)
	*m.acc.id(cp) = id
	*m.acc.status(cp) = *m.acc.status(old)
	m.rows[id] = cp
	return m.acc.clone(cp), nil
}

func (m *mockRepo[T]) SetStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || *m.acc.status(row) == status {
		return false, nil
	}
	*m.acc.status(row) = status
	return true, nil
}

func (m *mockRepo[T]) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return pgx.ErrNoRows
	}
	if m.referenced[id] {
		return &pgconn.PgError{Code: "23503", ConstraintName: "prescription_drug_drug_id_fkey"}
	}
	delete(m.rows, id)
	return nil
}

func (m *mockRepo[T]) List(_ context.Context, f Filter, limit, offset int) ([]T, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []T
	for _, id := range m.order {
		row, ok := m.rows[id]
		if !ok {
			continue
		}
		if f.ListID != nil && m.acc.listID(row) != *f.ListID {
			continue
		}
		if f.Status != "" && *m.acc.status(row) != f.Status {
			continue
		}
		all = append(all, m.acc.clone(row))
	}
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

// keyExists reports whether a stored row other than exclude matches key.
func (m *mockRepo[T]) keyExists(key ingest.Key, exclude uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if id == exclude {
			continue
		}
		if scope, ok := key.Scope["list_id"]; ok && m.acc.listID(row).String() != scope {
			continue
		}
		if ingest.Fold(m.acc.field(row, key.Field)) == ingest.Fold(key.Value) {
			return true
		}
	}
	return false
}

// mockLookup resolves keys against the registered member tables and list
// references against a fixed set of lists.
type mockLookup struct {
	tables map[string]func(ingest.Key, uuid.UUID) bool
	lists  map[uuid.UUID]string
}

func newMockLookup() *mockLookup {
	return &mockLookup{tables: make(map[string]func(ingest.Key, uuid.UUID) bool), lists: make(map[uuid.UUID]string)}
}

func (l *mockLookup) addList(kind string) uuid.UUID {
	id := uuid.New()
	l.lists[id] = kind
	return id
}

func (l *mockLookup) KeyExists(_ context.Context, table string, key ingest.Key, exclude uuid.UUID) (bool, error) {
	fn, ok := l.tables[table]
	if !ok {
		return false, nil
	}
	return fn(key, exclude), nil
}

func (l *mockLookup) RefExists(_ context.Context, ref ingest.Ref) (bool, error) {
	if ref.ID == nil {
		return true, nil
	}
	kind, ok := l.lists[*ref.ID]
	return ok && kind == ref.Target.Scope["kind"], nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	lookup     *mockLookup
	diagnoses  *mockRepo[*Diagnosis]
	drugs      *mockRepo[*Drug]
	clinicians *mockRepo[*Clinician]
	diagSvc    *Service[*Diagnosis]
	drugSvc    *Service[*Drug]
	clinSvc    *Service[*Clinician]
}

func newFixture() *fixture {
	f := &fixture{
		lookup:     newMockLookup(),
		diagnoses:  newMockRepo(diagnosisAccess),
		drugs:      newMockRepo(drugAccess),
		clinicians: newMockRepo(clinicianAccess),
	}
	f.lookup.tables["diagnosis"] = f.diagnoses.keyExists
	f.lookup.tables["drug"] = f.drugs.keyExists
	f.lookup.tables["clinician"] = f.clinicians.keyExists
	f.diagSvc = NewDiagnosisService(f.diagnoses, f.lookup, passTx{})
	f.drugSvc = NewDrugService(f.drugs, f.lookup, passTx{})
	f.clinSvc = NewClinicianService(f.clinicians, f.lookup, passTx{})
	return f
}
