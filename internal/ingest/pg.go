package ingest

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinref/clinref/internal/platform/db"
)

// PGLookup answers pipeline lookups with goqu-built EXISTS queries,
// joining the transaction bound to ctx when there is one.
type PGLookup struct {
	pool *pgxpool.Pool
}

func NewPGLookup(pool *pgxpool.Pool) *PGLookup {
	return &PGLookup{pool: pool}
}

func (l *PGLookup) KeyExists(ctx context.Context, table string, key Key, exclude uuid.UUID) (bool, error) {
	return db.ExistsFolded(ctx, db.Conn(ctx, l.pool), db.FoldedLookup{
		Table:   table,
		Column:  key.Field,
		Value:   key.Value,
		Scope:   scopeArgs(key.Scope),
		Exclude: exclude,
	})
}

func (l *PGLookup) RefExists(ctx context.Context, ref Ref) (bool, error) {
	if ref.ID == nil {
		return true, nil
	}
	return db.ExistsByID(ctx, db.Conn(ctx, l.pool), ref.Target.Table, *ref.ID, scopeArgs(ref.Target.Scope))
}

func scopeArgs(scope map[string]string) map[string]interface{} {
	if len(scope) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(scope))
	for col, v := range scope {
		out[col] = v
	}
	return out
}
