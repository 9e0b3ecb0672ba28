package prescription

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists the aggregate. Reads return the root only; line
// items are loaded with Drugs and Diagnoses.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error)

	AddDrug(ctx context.Context, item *DrugItem) error
	AddDiagnosis(ctx context.Context, item *DiagnosisItem) error
	Drugs(ctx context.Context, prescriptionID uuid.UUID) ([]*DrugItem, error)
	Diagnoses(ctx context.Context, prescriptionID uuid.UUID) ([]*DiagnosisItem, error)
	NextPosition(ctx context.Context, table string, prescriptionID uuid.UUID) (int, error)
	HasPrimaryDiagnosis(ctx context.Context, prescriptionID uuid.UUID) (bool, error)
	DeleteDrug(ctx context.Context, id uuid.UUID) error
	DeleteDiagnosis(ctx context.Context, id uuid.UUID) error
}
