package reflist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinref/clinref/internal/ingest"
)

type mockListRepo struct {
	mu         sync.Mutex
	lists      map[uuid.UUID]*List
	dependents map[uuid.UUID]bool
	seq        int
}

func newMockListRepo() *mockListRepo {
	return &mockListRepo{lists: make(map[uuid.UUID]*List), dependents: make(map[uuid.UUID]bool)}
}

func (m *mockListRepo) InsertBatch(_ context.Context, items []*List) ([]*List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*List, 0, len(items))
	for _, l := range items {
		cp := *l
		cp.ID = uuid.New()
		if cp.Status == "" {
			cp.Status = "ACTIVE"
		}
		m.seq++
		cp.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
		cp.UpdatedAt = cp.CreatedAt
		m.lists[cp.ID] = &cp
		ret := cp
		out = append(out, &ret)
	}
	return out, nil
}

func (m *mockListRepo) GetByID(_ context.Context, id uuid.UUID) (*List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (m *mockListRepo) Exists(_ context.Context, kind Kind, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	return ok && l.Kind == kind, nil
}

func (m *mockListRepo) Update(_ context.Context, id uuid.UUID, in *List) (*List, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	l.Name, l.Code, l.Description, l.ParentListID = in.Name, in.Code, in.Description, in.ParentListID
	cp := *l
	return &cp, nil
}

func (m *mockListRepo) SetStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[id]
	if !ok || l.Status == status {
		return false, nil
	}
	l.Status = status
	return true, nil
}

func (m *mockListRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lists[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.lists, id)
	return nil
}

func (m *mockListRepo) HasDependents(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dependents[id] {
		return true, nil
	}
	for _, l := range m.lists {
		if l.ParentListID != nil && *l.ParentListID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockListRepo) List(_ context.Context, f Filter, limit, offset int) ([]*List, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*List
	for _, l := range m.lists {
		if l.Kind != f.Kind {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Name != "" && ingest.Fold(l.Name) != ingest.Fold(f.Name) {
			continue
		}
		cp := *l
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

// mockLookup answers pipeline lookups from the mock repository.
type mockLookup struct {
	repo *mockListRepo
}

func (l *mockLookup) KeyExists(_ context.Context, _ string, key ingest.Key, exclude uuid.UUID) (bool, error) {
	l.repo.mu.Lock()
	defer l.repo.mu.Unlock()
	for id, row := range l.repo.lists {
		if id == exclude || string(row.Kind) != key.Scope["kind"] {
			continue
		}
		v := row.Name
		if key.Field == "code" {
			v = row.Code
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
	l.repo.mu.Lock()
	defer l.repo.mu.Unlock()
	row, ok := l.repo.lists[*ref.ID]
	return ok && string(row.Kind) == ref.Target.Scope["kind"], nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *mockListRepo) {
	repo := newMockListRepo()
	return NewService(repo, &mockLookup{repo: repo}, passTx{}), repo
}

func strPtr(s string) *string { return &s }
