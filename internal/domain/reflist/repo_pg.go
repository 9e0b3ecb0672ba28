package reflist

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/db"
)

type listRepoPG struct {
	pool   *pgxpool.Pool
	status *lifecycle.PGStore
}

func NewListRepoPG(pool *pgxpool.Pool) Repository {
	return &listRepoPG{pool: pool, status: lifecycle.NewPGStore(pool, Table)}
}

var listCols = []interface{}{
	"id", "kind", "name", "code", "description", "status",
	"parent_list_id", "created_at", "updated_at",
}

const listColsSQL = `id, kind, name, code, description, status, parent_list_id, created_at, updated_at`

func scanList(row pgx.Row) (*List, error) {
	var l List
	err := row.Scan(&l.ID, &l.Kind, &l.Name, &l.Code, &l.Description, &l.Status,
		&l.ParentListID, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *listRepoPG) InsertBatch(ctx context.Context, items []*List) ([]*List, error) {
	conn := db.Conn(ctx, r.pool)
	created := make([]*List, 0, len(items))
	for _, l := range items {
		status := l.Status
		if status == "" {
			status = lifecycle.Upper.Active
		}
		query, args, err := db.InsertSQL(Table, goqu.Record{
			"id":             uuid.New().String(),
			"kind":           string(l.Kind),
			"name":           l.Name,
			"code":           l.Code,
			"description":    db.StringArg(l.Description),
			"status":         status,
			"parent_list_id": db.UUIDArg(l.ParentListID),
		}, listCols...)
		if err != nil {
			return nil, err
		}
		row, err := scanList(conn.QueryRow(ctx, query, args...))
		if err != nil {
			return nil, err
		}
		created = append(created, row)
	}
	return created, nil
}

func (r *listRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*List, error) {
	return scanList(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+listColsSQL+` FROM reference_list WHERE id = $1`, id))
}

func (r *listRepoPG) Exists(ctx context.Context, kind Kind, id uuid.UUID) (bool, error) {
	return db.ExistsByID(ctx, db.Conn(ctx, r.pool), Table, id, map[string]interface{}{"kind": string(kind)})
}

func (r *listRepoPG) Update(ctx context.Context, id uuid.UUID, l *List) (*List, error) {
	query, args, err := db.UpdateSQL(Table, id, goqu.Record{
		"name":           l.Name,
		"code":           l.Code,
		"description":    db.StringArg(l.Description),
		"parent_list_id": db.UUIDArg(l.ParentListID),
		"updated_at":     goqu.L("NOW()"),
	}, listCols...)
	if err != nil {
		return nil, err
	}
	return scanList(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
}

func (r *listRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	return r.status.SetStatus(ctx, id, status)
}

func (r *listRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM reference_list WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *listRepoPG) HasDependents(ctx context.Context, id uuid.UUID) (bool, error) {
	var has bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reference_list WHERE parent_list_id = $1)
			OR EXISTS (SELECT 1 FROM diagnosis WHERE list_id = $1)
			OR EXISTS (SELECT 1 FROM drug WHERE list_id = $1)
			OR EXISTS (SELECT 1 FROM clinician WHERE list_id = $1)
			OR EXISTS (SELECT 1 FROM health_authority_config
				WHERE drug_list_id = $1 OR diagnosis_list_id = $1 OR clinician_list_id = $1)`,
		id).Scan(&has)
	return has, err
}

func (r *listRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*List, int, error) {
	filters := []db.Filter{{Column: "kind", Value: string(f.Kind)}}
	if f.Status != "" {
		filters = append(filters, db.Filter{Column: "status", Value: f.Status})
	}
	if f.Name != "" {
		filters = append(filters, db.Filter{Column: "name", Value: f.Name, Folded: true})
	}
	if f.ParentListID != nil {
		filters = append(filters, db.Filter{Column: "parent_list_id", Value: f.ParentListID.String()})
	}

	dataSQL, dataArgs, countSQL, countArgs, err := db.ListSQL(Table, listCols, filters, "created_at", limit, offset)
	if err != nil {
		return nil, 0, err
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*List
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}
