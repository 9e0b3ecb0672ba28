// Package lifecycle manages the ACTIVE/INACTIVE status of lists, payers,
// health authorities and member rows.
//
// A transition is a single conditional update that only matches rows not
// already in the target state, so two concurrent toggles cannot both
// succeed. When nothing changed a lookup tells a missing row (not found)
// from a no-op transition (validation failure).
package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

// Transition is a requested status change.
type Transition int

const (
	Activate Transition = iota
	Deactivate
)

func (t Transition) String() string {
	if t == Activate {
		return "activate"
	}
	return "deactivate"
}

// States spells the two statuses of an entity.
type States struct {
	Active   string
	Inactive string
}

var (
	// Upper is used by lists, payers and health authorities.
	Upper = States{Active: "ACTIVE", Inactive: "INACTIVE"}
	// Lower is used by diagnosis, drug and clinician rows.
	Lower = States{Active: "active", Inactive: "inactive"}
)

// Target returns the status a transition moves to.
func (s States) Target(t Transition) string {
	if t == Activate {
		return s.Active
	}
	return s.Inactive
}

// Next applies t to current. A transition into the current state is an
// error and the status is returned unchanged.
func (s States) Next(current string, t Transition) (string, error) {
	target := s.Target(t)
	if current == target {
		return current, fmt.Errorf("already %s", target)
	}
	return target, nil
}

// Store performs the conditional status update.
type Store interface {
	// SetStatus moves the row to status unless it already has it and
	// reports whether a row changed.
	SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Manager runs transitions for one entity.
type Manager struct {
	entity string
	states States
	store  Store
}

func NewManager(entity string, states States, store Store) *Manager {
	return &Manager{entity: entity, states: states, store: store}
}

func (m *Manager) Activate(ctx context.Context, id uuid.UUID) error {
	return m.Apply(ctx, id, Activate)
}

func (m *Manager) Deactivate(ctx context.Context, id uuid.UUID) error {
	return m.Apply(ctx, id, Deactivate)
}

// Apply runs t against the row with id.
func (m *Manager) Apply(ctx context.Context, id uuid.UUID, t Transition) error {
	target := m.states.Target(t)
	changed, err := m.store.SetStatus(ctx, id, target)
	if err != nil {
		return db.MapError(err, m.entity)
	}
	if changed {
		return nil
	}

	exists, err := m.store.Exists(ctx, id)
	if err != nil {
		return db.MapError(err, m.entity)
	}
	if !exists {
		return apperr.NotFound("%s %s not found", m.entity, id)
	}
	return apperr.Validation("%s %s is already %s", m.entity, id, target)
}

// PGStore implements Store against one table with id, status and
// updated_at columns.
type PGStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPGStore(pool *pgxpool.Pool, table string) *PGStore {
	return &PGStore{pool: pool, table: table}
}

func (s *PGStore) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx,
		`UPDATE `+s.table+` SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> $2`,
		id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return db.ExistsByID(ctx, db.Conn(ctx, s.pool), s.table, id, nil)
}
