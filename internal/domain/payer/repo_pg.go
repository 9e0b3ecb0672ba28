package payer

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/db"
)

type payerRepoPG struct {
	pool   *pgxpool.Pool
	status *lifecycle.PGStore
}

func NewPayerRepoPG(pool *pgxpool.Pool) Repository {
	return &payerRepoPG{pool: pool, status: lifecycle.NewPGStore(pool, Table)}
}

var payerCols = []interface{}{"id", "name", "code", "status", "created_at", "updated_at"}

const payerColsSQL = `id, name, code, status, created_at, updated_at`

func scanPayer(row pgx.Row) (*Payer, error) {
	var p Payer
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *payerRepoPG) InsertBatch(ctx context.Context, items []*Payer) ([]*Payer, error) {
	conn := db.Conn(ctx, r.pool)
	created := make([]*Payer, 0, len(items))
	for _, p := range items {
		status := p.Status
		if status == "" {
			status = lifecycle.Upper.Active
		}
		query, args, err := db.InsertSQL(Table, goqu.Record{
			"id":     uuid.New().String(),
			"name":   p.Name,
			"code":   p.Code,
			"status": status,
		}, payerCols...)
		if err != nil {
			return nil, err
		}
		row, err := scanPayer(conn.QueryRow(ctx, query, args...))
		if err != nil {
			return nil, err
		}
		created = append(created, row)
	}
	return created, nil
}

func (r *payerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return scanPayer(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+payerColsSQL+` FROM payer WHERE id = $1`, id))
}

func (r *payerRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.status.Exists(ctx, id)
}

func (r *payerRepoPG) Update(ctx context.Context, id uuid.UUID, p *Payer) (*Payer, error) {
	query, args, err := db.UpdateSQL(Table, id, goqu.Record{
		"name":       p.Name,
		"code":       p.Code,
		"updated_at": goqu.L("NOW()"),
	}, payerCols...)
	if err != nil {
		return nil, err
	}
	return scanPayer(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
}

func (r *payerRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	return r.status.SetStatus(ctx, id, status)
}

func (r *payerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM payer WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *payerRepoPG) List(ctx context.Context, status, name string, limit, offset int) ([]*Payer, int, error) {
	var filters []db.Filter
	if status != "" {
		filters = append(filters, db.Filter{Column: "status", Value: status})
	}
	if name != "" {
		filters = append(filters, db.Filter{Column: "name", Value: name, Folded: true})
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.ListSQL(Table, payerCols, filters, "name", limit, offset)
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
	var items []*Payer
	for rows.Next() {
		p, err := scanPayer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
