// Package prescription assembles prescriptions submitted by pharmacies: a
// root record plus ordered drug and diagnosis line items that reference
// reference-data members.
package prescription

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/domain/authority"
	"github.com/clinref/clinref/internal/domain/member"
	"github.com/clinref/clinref/internal/domain/payer"
	"github.com/clinref/clinref/internal/ingest"
)

const (
	Table          = "prescription"
	DrugTable      = "prescription_drug"
	DiagnosisTable = "prescription_diagnosis"

	// PrimaryDiagnosisConstraint is the partial unique index that allows
	// one primary diagnosis per prescription.
	PrimaryDiagnosisConstraint = "uq_prescription_diagnosis_primary"
)

var (
	clinicianTarget = ingest.Target{Entity: "clinician", Table: member.ClinicianTable}
	drugTarget      = ingest.Target{Entity: "drug", Table: member.DrugTable}
	diagnosisTarget = ingest.Target{Entity: "diagnosis", Table: member.DiagnosisTable}
	authorityTarget = ingest.Target{Entity: "health authority", Table: authority.Table}
	payerTarget     = ingest.Target{Entity: "payer", Table: payer.Table}
)

// Prescription is the aggregate root. Drugs and Diagnoses are owned by it
// and are removed with it.
type Prescription struct {
	ID                 uuid.UUID        `json:"id"`
	PrescriptionNumber string           `json:"prescription_number"`
	PatientReference   string           `json:"patient_reference"`
	ClinicianID        uuid.UUID        `json:"clinician_id"`
	HealthAuthorityID  *uuid.UUID       `json:"health_authority_id,omitempty"`
	PayerID            *uuid.UUID       `json:"payer_id,omitempty"`
	PharmacyReference  *string          `json:"pharmacy_reference,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	PrescribedAt       time.Time        `json:"prescribed_at"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	Drugs              []*DrugItem      `json:"drugs"`
	Diagnoses          []*DiagnosisItem `json:"diagnoses"`
}

type DrugItem struct {
	ID             uuid.UUID `json:"id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	DrugID         uuid.UUID `json:"drug_id"`
	Quantity       int       `json:"quantity"`
	Dosage         *string   `json:"dosage,omitempty"`
	Frequency      *string   `json:"frequency,omitempty"`
	DurationDays   *int      `json:"duration_days,omitempty"`
	Instructions   *string   `json:"instructions,omitempty"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

type DiagnosisItem struct {
	ID             uuid.UUID `json:"id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	DiagnosisID    uuid.UUID `json:"diagnosis_id"`
	IsPrimary      bool      `json:"is_primary"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"created_at"`
}

// Normalize trims the prescription number and patient reference.
func (p *Prescription) Normalize() {
	if p == nil {
		return
	}
	p.PrescriptionNumber = strings.TrimSpace(p.PrescriptionNumber)
	p.PatientReference = strings.TrimSpace(p.PatientReference)
}

// Validate checks the root fields and every line item. At least one drug
// is required and at most one diagnosis may be primary.
func (p *Prescription) Validate() error {
	if p == nil {
		return errors.New("body is null")
	}
	if strings.TrimSpace(p.PrescriptionNumber) == "" {
		return errors.New("prescription_number is required")
	}
	if len(p.PrescriptionNumber) > 64 {
		return errors.New("prescription_number must be at most 64 characters")
	}
	if strings.TrimSpace(p.PatientReference) == "" {
		return errors.New("patient_reference is required")
	}
	if p.ClinicianID == uuid.Nil {
		return errors.New("clinician_id is required")
	}
	for i, d := range p.Drugs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("drugs[%d]: %w", i, err)
		}
	}
	primary := -1
	for i, d := range p.Diagnoses {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("diagnoses[%d]: %w", i, err)
		}
		if d.IsPrimary {
			if primary >= 0 {
				return fmt.Errorf("diagnoses[%d]: only one primary diagnosis allowed (diagnoses[%d] is primary)", i, primary)
			}
			primary = i
		}
	}
	return nil
}

// Refs returns every reference of the aggregate, line items included.
func (p *Prescription) Refs() []ingest.Ref {
	refs := []ingest.Ref{
		{Field: "clinician_id", ID: &p.ClinicianID, Target: clinicianTarget},
		{Field: "health_authority_id", ID: p.HealthAuthorityID, Target: authorityTarget},
		{Field: "payer_id", ID: p.PayerID, Target: payerTarget},
	}
	for i, d := range p.Drugs {
		refs = append(refs, ingest.Ref{Field: fmt.Sprintf("drugs[%d].drug_id", i), ID: &d.DrugID, Target: drugTarget})
	}
	for i, d := range p.Diagnoses {
		refs = append(refs, ingest.Ref{Field: fmt.Sprintf("diagnoses[%d].diagnosis_id", i), ID: &d.DiagnosisID, Target: diagnosisTarget})
	}
	return refs
}

func (p *Prescription) Keys() []ingest.Key {
	return []ingest.Key{{Field: "prescription_number", Value: p.PrescriptionNumber}}
}

func (d *DrugItem) Validate() error {
	if d == nil {
		return errors.New("entry is null")
	}
	if d.DrugID == uuid.Nil {
		return errors.New("drug_id is required")
	}
	if d.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if d.DurationDays != nil && *d.DurationDays <= 0 {
		return errors.New("duration_days must be positive")
	}
	return nil
}

func (d *DiagnosisItem) Validate() error {
	if d == nil {
		return errors.New("entry is null")
	}
	if d.DiagnosisID == uuid.Nil {
		return errors.New("diagnosis_id is required")
	}
	return nil
}

// Filter narrows a prescription listing.
type Filter struct {
	ClinicianID      *uuid.UUID
	PatientReference string
}
