package member

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/db"
)

// table describes how one member entity maps onto its table.
type table[T Member] struct {
	name   string
	cols   []string
	scan   func(row pgx.Row) (T, error)
	record func(item T) goqu.Record
}

func (t table[T]) returning() []interface{} {
	out := make([]interface{}, len(t.cols))
	for i, c := range t.cols {
		out[i] = c
	}
	return out
}

type memberRepoPG[T Member] struct {
	pool   *pgxpool.Pool
	t      table[T]
	status *lifecycle.PGStore
}

func newRepoPG[T Member](pool *pgxpool.Pool, t table[T]) Repository[T] {
	return &memberRepoPG[T]{pool: pool, t: t, status: lifecycle.NewPGStore(pool, t.name)}
}

func NewDiagnosisRepoPG(pool *pgxpool.Pool) Repository[*Diagnosis] {
	return newRepoPG(pool, diagnosisTable)
}

func NewDrugRepoPG(pool *pgxpool.Pool) Repository[*Drug] {
	return newRepoPG(pool, drugTable)
}

func NewClinicianRepoPG(pool *pgxpool.Pool) Repository[*Clinician] {
	return newRepoPG(pool, clinicianTable)
}

func statusOrDefault(s string) string {
	if s == "" {
		return lifecycle.Lower.Active
	}
	return s
}

var diagnosisTable = table[*Diagnosis]{
	name: DiagnosisTable,
	cols: []string{"id", "icd_code", "diagnosis_code", "description", "list_id", "status", "created_at", "updated_at"},
	scan: func(row pgx.Row) (*Diagnosis, error) {
		var d Diagnosis
		err := row.Scan(&d.ID, &d.ICDCode, &d.DiagnosisCode, &d.Description, &d.ListID, &d.Status, &d.CreatedAt, &d.UpdatedAt)
		return &d, err
	},
	record: func(d *Diagnosis) goqu.Record {
		return goqu.Record{
			"icd_code":       d.ICDCode,
			"diagnosis_code": d.DiagnosisCode,
			"description":    d.Description,
			"list_id":        d.ListID.String(),
		}
	},
}

var drugTable = table[*Drug]{
	name: DrugTable,
	cols: []string{"id", "ndc_drug_code", "name", "strength", "dosage_form", "list_id", "status", "created_at", "updated_at"},
	scan: func(row pgx.Row) (*Drug, error) {
		var d Drug
		err := row.Scan(&d.ID, &d.NDCDrugCode, &d.Name, &d.Strength, &d.DosageForm, &d.ListID, &d.Status, &d.CreatedAt, &d.UpdatedAt)
		return &d, err
	},
	record: func(d *Drug) goqu.Record {
		return goqu.Record{
			"ndc_drug_code": d.NDCDrugCode,
			"name":          d.Name,
			"strength":      db.StringArg(d.Strength),
			"dosage_form":   db.StringArg(d.DosageForm),
			"list_id":       d.ListID.String(),
		}
	},
}

var clinicianTable = table[*Clinician]{
	name: ClinicianTable,
	cols: []string{"id", "first_name", "last_name", "email", "license_number", "specialty", "list_id", "status", "created_at", "updated_at"},
	scan: func(row pgx.Row) (*Clinician, error) {
		var c Clinician
		err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.LicenseNumber, &c.Specialty, &c.ListID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
		return &c, err
	},
	record: func(c *Clinician) goqu.Record {
		return goqu.Record{
			"first_name":     c.FirstName,
			"last_name":      c.LastName,
			"email":          c.Email,
			"license_number": c.LicenseNumber,
			"specialty":      db.StringArg(c.Specialty),
			"list_id":        c.ListID.String(),
		}
	},
}

// statusOf reads the requested initial status of a new row.
func statusOf(item Member) string {
	switch m := item.(type) {
	case *Diagnosis:
		return m.Status
	case *Drug:
		return m.Status
	case *Clinician:
		return m.Status
	}
	return ""
}

func (r *memberRepoPG[T]) InsertBatch(ctx context.Context, items []T) ([]T, error) {
	conn := db.Conn(ctx, r.pool)
	created := make([]T, 0, len(items))
	for _, item := range items {
		rec := r.t.record(item)
		rec["id"] = uuid.New().String()
		rec["status"] = statusOrDefault(statusOf(item))
		query, args, err := db.InsertSQL(r.t.name, rec, r.t.returning()...)
		if err != nil {
			return nil, err
		}
		row, err := r.t.scan(conn.QueryRow(ctx, query, args...))
		if err != nil {
			return nil, err
		}
		created = append(created, row)
	}
	return created, nil
}

func (r *memberRepoPG[T]) GetByID(ctx context.Context, id uuid.UUID) (T, error) {
	return r.t.scan(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+strings.Join(r.t.cols, ", ")+` FROM `+r.t.name+` WHERE id = $1`, id))
}

func (r *memberRepoPG[T]) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return db.ExistsByID(ctx, db.Conn(ctx, r.pool), r.t.name, id, nil)
}

func (r *memberRepoPG[T]) Update(ctx context.Context, id uuid.UUID, item T) (T, error) {
	rec := r.t.record(item)
	rec["updated_at"] = goqu.L("NOW()")
	query, args, err := db.UpdateSQL(r.t.name, id, rec, r.t.returning()...)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.t.scan(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
}

func (r *memberRepoPG[T]) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	return r.status.SetStatus(ctx, id, status)
}

func (r *memberRepoPG[T]) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM `+r.t.name+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *memberRepoPG[T]) List(ctx context.Context, f Filter, limit, offset int) ([]T, int, error) {
	var filters []db.Filter
	if f.ListID != nil {
		filters = append(filters, db.Filter{Column: "list_id", Value: f.ListID.String()})
	}
	if f.Status != "" {
		filters = append(filters, db.Filter{Column: "status", Value: f.Status})
	}

	dataSQL, dataArgs, countSQL, countArgs, err := db.ListSQL(r.t.name, r.t.returning(), filters, "created_at", limit, offset)
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
	var items []T
	for rows.Next() {
		item, err := r.t.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}
