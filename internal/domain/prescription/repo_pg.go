package prescription

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinref/clinref/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

var rootCols = []interface{}{
	"id", "prescription_number", "patient_reference", "clinician_id", "health_authority_id",
	"payer_id", "pharmacy_reference", "notes", "prescribed_at", "created_at", "updated_at",
}

const rootColsSQL = `id, prescription_number, patient_reference, clinician_id, health_authority_id,
	payer_id, pharmacy_reference, notes, prescribed_at, created_at, updated_at`

func scanRoot(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PrescriptionNumber, &p.PatientReference, &p.ClinicianID, &p.HealthAuthorityID,
		&p.PayerID, &p.PharmacyReference, &p.Notes, &p.PrescribedAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

const drugColsSQL = `id, prescription_id, drug_id, quantity, dosage, frequency, duration_days, instructions, position, created_at`

func scanDrug(row pgx.Row) (*DrugItem, error) {
	var d DrugItem
	err := row.Scan(&d.ID, &d.PrescriptionID, &d.DrugID, &d.Quantity, &d.Dosage, &d.Frequency,
		&d.DurationDays, &d.Instructions, &d.Position, &d.CreatedAt)
	return &d, err
}

const diagnosisColsSQL = `id, prescription_id, diagnosis_id, is_primary, position, created_at`

func scanDiagnosis(row pgx.Row) (*DiagnosisItem, error) {
	var d DiagnosisItem
	err := row.Scan(&d.ID, &d.PrescriptionID, &d.DiagnosisID, &d.IsPrimary, &d.Position, &d.CreatedAt)
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	query, args, err := db.InsertSQL(Table, goqu.Record{
		"id":                  p.ID.String(),
		"prescription_number": p.PrescriptionNumber,
		"patient_reference":   p.PatientReference,
		"clinician_id":        p.ClinicianID.String(),
		"health_authority_id": db.UUIDArg(p.HealthAuthorityID),
		"payer_id":            db.UUIDArg(p.PayerID),
		"pharmacy_reference":  db.StringArg(p.PharmacyReference),
		"notes":               db.StringArg(p.Notes),
		"prescribed_at":       p.PrescribedAt,
	}, "created_at", "updated_at")
	if err != nil {
		return err
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanRoot(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+rootColsSQL+` FROM prescription WHERE id = $1`, id))
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return db.ExistsByID(ctx, db.Conn(ctx, r.pool), Table, id, nil)
}

// Delete removes the root; line items go with it through ON DELETE CASCADE.
func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	return r.deleteFrom(ctx, Table, id)
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	var filters []db.Filter
	if f.ClinicianID != nil {
		filters = append(filters, db.Filter{Column: "clinician_id", Value: f.ClinicianID.String()})
	}
	if f.PatientReference != "" {
		filters = append(filters, db.Filter{Column: "patient_reference", Value: f.PatientReference})
	}
	dataSQL, dataArgs, countSQL, countArgs, err := db.ListSQL(Table, rootCols, filters, "prescribed_at", limit, offset)
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
	var items []*Prescription
	for rows.Next() {
		p, err := scanRoot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) AddDrug(ctx context.Context, item *DrugItem) error {
	item.ID = uuid.New()
	var duration interface{}
	if item.DurationDays != nil {
		duration = *item.DurationDays
	}
	query, args, err := db.InsertSQL(DrugTable, goqu.Record{
		"id":              item.ID.String(),
		"prescription_id": item.PrescriptionID.String(),
		"drug_id":         item.DrugID.String(),
		"quantity":        item.Quantity,
		"dosage":          db.StringArg(item.Dosage),
		"frequency":       db.StringArg(item.Frequency),
		"duration_days":   duration,
		"instructions":    db.StringArg(item.Instructions),
		"position":        item.Position,
	}, "created_at")
	if err != nil {
		return err
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&item.CreatedAt)
}

func (r *repoPG) AddDiagnosis(ctx context.Context, item *DiagnosisItem) error {
	item.ID = uuid.New()
	query, args, err := db.InsertSQL(DiagnosisTable, goqu.Record{
		"id":              item.ID.String(),
		"prescription_id": item.PrescriptionID.String(),
		"diagnosis_id":    item.DiagnosisID.String(),
		"is_primary":      item.IsPrimary,
		"position":        item.Position,
	}, "created_at")
	if err != nil {
		return err
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&item.CreatedAt)
}

func (r *repoPG) Drugs(ctx context.Context, prescriptionID uuid.UUID) ([]*DrugItem, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+drugColsSQL+` FROM prescription_drug WHERE prescription_id = $1 ORDER BY position, created_at`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DrugItem
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) Diagnoses(ctx context.Context, prescriptionID uuid.UUID) ([]*DiagnosisItem, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+diagnosisColsSQL+` FROM prescription_diagnosis WHERE prescription_id = $1 ORDER BY position, created_at`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DiagnosisItem
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// NextPosition returns the position after the last line item of the
// prescription in table.
func (r *repoPG) NextPosition(ctx context.Context, table string, prescriptionID uuid.UUID) (int, error) {
	query, args, err := db.Dialect().From(table).
		Select(goqu.COALESCE(goqu.MAX("position"), -1)).
		Where(goqu.Ex{"prescription_id": prescriptionID.String()}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build position lookup on %s: %w", table, err)
	}
	var last int
	if err := db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&last); err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (r *repoPG) HasPrimaryDiagnosis(ctx context.Context, prescriptionID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM prescription_diagnosis WHERE prescription_id = $1 AND is_primary)`,
		prescriptionID).Scan(&exists)
	return exists, err
}

func (r *repoPG) DeleteDrug(ctx context.Context, id uuid.UUID) error {
	return r.deleteFrom(ctx, DrugTable, id)
}

func (r *repoPG) DeleteDiagnosis(ctx context.Context, id uuid.UUID) error {
	return r.deleteFrom(ctx, DiagnosisTable, id)
}

func (r *repoPG) deleteFrom(ctx context.Context, table string, id uuid.UUID) error {
	query, args, err := db.Dialect().Delete(table).
		Where(goqu.Ex{"id": id.String()}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build delete on %s: %w", table, err)
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
