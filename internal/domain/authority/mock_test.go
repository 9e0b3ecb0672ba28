package authority

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinref/clinref/internal/domain/reflist"
	"github.com/clinref/clinref/internal/ingest"
)

type mockAuthorityRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*HealthAuthority
	seq   int
}

func newMockAuthorityRepo() *mockAuthorityRepo {
	return &mockAuthorityRepo{items: make(map[uuid.UUID]*HealthAuthority)}
}

func (m *mockAuthorityRepo) InsertBatch(_ context.Context, items []*HealthAuthority) ([]*HealthAuthority, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*HealthAuthority, 0, len(items))
	for _, a := range items {
		cp := *a
		cp.ID = uuid.New()
		if cp.Status == "" {
			cp.Status = "ACTIVE"
		}
		m.seq++
		cp.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
		cp.UpdatedAt = cp.CreatedAt
		m.items[cp.ID] = &cp
		ret := cp
		out = append(out, &ret)
	}
	return out, nil
}

func (m *mockAuthorityRepo) GetByID(_ context.Context, id uuid.UUID) (*HealthAuthority, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockAuthorityRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok, nil
}

func (m *mockAuthorityRepo) Update(_ context.Context, id uuid.UUID, in *HealthAuthority) (*HealthAuthority, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	a.Name, a.Code = in.Name, in.Code
	cp := *a
	return &cp, nil
}

func (m *mockAuthorityRepo) SetStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok || a.Status == status {
		return false, nil
	}
	a.Status = status
	return true, nil
}

func (m *mockAuthorityRepo) List(_ context.Context, status string, limit, offset int) ([]*HealthAuthority, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*HealthAuthority
	for _, a := range m.items {
		if status != "" && a.Status != status {
			continue
		}
		cp := *a
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

type mockConfigRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Config
}

func newMockConfigRepo() *mockConfigRepo {
	return &mockConfigRepo{items: make(map[uuid.UUID]*Config)}
}

func (m *mockConfigRepo) Create(_ context.Context, c *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockConfigRepo) GetByID(_ context.Context, id uuid.UUID) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *mockConfigRepo) TripleExists(_ context.Context, drug, diag, clin uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.items {
		if c.DrugListID == drug && c.DiagnosisListID == diag && c.ClinicianListID == clin {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockConfigRepo) ListByAuthority(_ context.Context, authorityID uuid.UUID) ([]*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Config
	for _, c := range m.items {
		if c.HealthAuthorityID == authorityID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockConfigRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

// mockLookup resolves authority keys from the mock repository and list
// references from a kind-indexed set.
type mockLookup struct {
	authorities *mockAuthorityRepo
	lists       map[uuid.UUID]reflist.Kind
}

func (l *mockLookup) KeyExists(_ context.Context, _ string, key ingest.Key, exclude uuid.UUID) (bool, error) {
	l.authorities.mu.Lock()
	defer l.authorities.mu.Unlock()
	for id, a := range l.authorities.items {
		if id == exclude {
			continue
		}
		v := a.Name
		if key.Field == "code" {
			v = a.Code
		}
		if ingest.Fold(v) == ingest.Fold(key.Value) {
			return true, nil
		}
	}
	return false, nil
}

func (l *mockLookup) RefExists(_ context.Context, ref ingest.Ref) (bool, error) {
	if ref.ID == nil {
		return true, nil
	}
	if ref.Target.Table == Table {
		l.authorities.mu.Lock()
		defer l.authorities.mu.Unlock()
		_, ok := l.authorities.items[*ref.ID]
		return ok, nil
	}
	kind, ok := l.lists[*ref.ID]
	return ok && string(kind) == ref.Target.Scope["kind"], nil
}

func (l *mockLookup) addList(kind reflist.Kind) uuid.UUID {
	id := uuid.New()
	l.lists[id] = kind
	return id
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	svc     *Service
	repo    *mockAuthorityRepo
	configs *mockConfigRepo
	lookup  *mockLookup
}

func newFixture() *fixture {
	repo := newMockAuthorityRepo()
	configs := newMockConfigRepo()
	lookup := &mockLookup{authorities: repo, lists: make(map[uuid.UUID]reflist.Kind)}
	return &fixture{
		svc:     NewService(repo, configs, lookup, passTx{}),
		repo:    repo,
		configs: configs,
		lookup:  lookup,
	}
}

func (f *fixture) seedAuthority(name, code string) *HealthAuthority {
	created, err := f.svc.CreateAuthorities(context.Background(), []*HealthAuthority{{Name: name, Code: code}})
	if err != nil {
		panic(err)
	}
	return created[0]
}

func (f *fixture) validConfig(authorityID uuid.UUID) *Config {
	return &Config{
		HealthAuthorityID: authorityID,
		DrugListID:        f.lookup.addList(reflist.KindDrug),
		DiagnosisListID:   f.lookup.addList(reflist.KindDiagnosis),
		ClinicianListID:   f.lookup.addList(reflist.KindClinician),
	}
}
