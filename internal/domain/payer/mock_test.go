package payer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinref/clinref/internal/ingest"
)

type mockRepo struct {
	mu         sync.Mutex
	items      map[uuid.UUID]*Payer
	referenced map[uuid.UUID]bool
	seq        int
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Payer), referenced: make(map[uuid.UUID]bool)}
}

func (m *mockRepo) InsertBatch(_ context.Context, items []*Payer) ([]*Payer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Payer, 0, len(items))
	for _, p := range items {
		cp := *p
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

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Payer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok, nil
}

func (m *mockRepo) Update(_ context.Context, id uuid.UUID, in *Payer) (*Payer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	p.Name, p.Code = in.Name, in.Code
	cp := *p
	return &cp, nil
}

func (m *mockRepo) SetStatus(_ context.Context, id uuid.UUID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok || p.Status == status {
		return false, nil
	}
	p.Status = status
	return true, nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return pgx.ErrNoRows
	}
	if m.referenced[id] {
		return &pgconn.PgError{Code: "23503", ConstraintName: "prescription_payer_id_fkey"}
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, status, name string, limit, offset int) ([]*Payer, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Payer
	for _, p := range m.items {
		if status != "" && p.Status != status {
			continue
		}
		if name != "" && ingest.Fold(p.Name) != ingest.Fold(name) {
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

type mockLookup struct {
	repo *mockRepo
}

func (l *mockLookup) KeyExists(_ context.Context, _ string, key ingest.Key, exclude uuid.UUID) (bool, error) {
	l.repo.mu.Lock()
	defer l.repo.mu.Unlock()
	for id, p := range l.repo.items {
		if id == exclude {
			continue
		}
		v := p.Name
		if key.Field == "code" {
			v = p.Code
		}
		if ingest.Fold(v) == ingest.Fold(key.Value) {
			return true, nil
		}
	}
	return false, nil
}

func (l *mockLookup) RefExists(context.Context, ingest.Ref) (bool, error) {
	return true, nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, &mockLookup{repo: repo}, passTx{}, ingest.WithMaxBatch(3)), repo
}
