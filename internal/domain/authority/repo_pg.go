package authority

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinref/clinref/internal/lifecycle"
	"github.com/clinref/clinref/internal/platform/db"
)

type authorityRepoPG struct {
	pool   *pgxpool.Pool
	status *lifecycle.PGStore
}

func NewAuthorityRepoPG(pool *pgxpool.Pool) AuthorityRepository {
	return &authorityRepoPG{pool: pool, status: lifecycle.NewPGStore(pool, Table)}
}

var authorityCols = []interface{}{"id", "name", "code", "status", "created_at", "updated_at"}

const authorityColsSQL = `id, name, code, status, created_at, updated_at`

func scanAuthority(row pgx.Row) (*HealthAuthority, error) {
	var a HealthAuthority
	err := row.Scan(&a.ID, &a.Name, &a.Code, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *authorityRepoPG) InsertBatch(ctx context.Context, items []*HealthAuthority) ([]*HealthAuthority, error) {
	conn := db.Conn(ctx, r.pool)
	created := make([]*HealthAuthority, 0, len(items))
	for _, a := range items {
		status := a.Status
		if status == "" {
			status = lifecycle.Upper.Active
		}
		query, args, err := db.InsertSQL(Table, goqu.Record{
			"id":     uuid.New().String(),
			"name":   a.Name,
			"code":   a.Code,
			"status": status,
		}, authorityCols...)
		if err != nil {
			return nil, err
		}
		row, err := scanAuthority(conn.QueryRow(ctx, query, args...))
		if err != nil {
			return nil, err
		}
		created = append(created, row)
	}
	return created, nil
}

func (r *authorityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*HealthAuthority, error) {
	return scanAuthority(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+authorityColsSQL+` FROM health_authority WHERE id = $1`, id))
}

func (r *authorityRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.status.Exists(ctx, id)
}

func (r *authorityRepoPG) Update(ctx context.Context, id uuid.UUID, a *HealthAuthority) (*HealthAuthority, error) {
	query, args, err := db.UpdateSQL(Table, id, goqu.Record{
		"name":       a.Name,
		"code":       a.Code,
		"updated_at": goqu.L("NOW()"),
	}, authorityCols...)
	if err != nil {
		return nil, err
	}
	return scanAuthority(db.Conn(ctx, r.pool).QueryRow(ctx, query, args...))
}

func (r *authorityRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	return r.status.SetStatus(ctx, id, status)
}

func (r *authorityRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*HealthAuthority, int, error) {
	var filters []db.Filter
	if status != "" {
		filters = append(filters, db.Filter{Column: "status", Value: status})
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.ListSQL(Table, authorityCols, filters, "name", limit, offset)
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
	var items []*HealthAuthority
	for rows.Next() {
		a, err := scanAuthority(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

type configRepoPG struct{ pool *pgxpool.Pool }

func NewConfigRepoPG(pool *pgxpool.Pool) ConfigRepository {
	return &configRepoPG{pool: pool}
}

const configCols = `id, health_authority_id, drug_list_id, diagnosis_list_id, clinician_list_id, created_at`

func scanConfig(row pgx.Row) (*Config, error) {
	var c Config
	err := row.Scan(&c.ID, &c.HealthAuthorityID, &c.DrugListID, &c.DiagnosisListID, &c.ClinicianListID, &c.CreatedAt)
	return &c, err
}

func (r *configRepoPG) Create(ctx context.Context, c *Config) error {
	c.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO health_authority_config (id, health_authority_id, drug_list_id, diagnosis_list_id, clinician_list_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		c.ID, c.HealthAuthorityID, c.DrugListID, c.DiagnosisListID, c.ClinicianListID).Scan(&c.CreatedAt)
}

func (r *configRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Config, error) {
	return scanConfig(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+configCols+` FROM health_authority_config WHERE id = $1`, id))
}

func (r *configRepoPG) TripleExists(ctx context.Context, drugListID, diagnosisListID, clinicianListID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM health_authority_config
			WHERE drug_list_id = $1 AND diagnosis_list_id = $2 AND clinician_list_id = $3)`,
		drugListID, diagnosisListID, clinicianListID).Scan(&exists)
	return exists, err
}

func (r *configRepoPG) ListByAuthority(ctx context.Context, authorityID uuid.UUID) ([]*Config, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+configCols+` FROM health_authority_config WHERE health_authority_id = $1 ORDER BY created_at`, authorityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *configRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM health_authority_config WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
