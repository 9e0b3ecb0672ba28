// Package member holds the rows grouped by reference lists: diagnoses,
// drugs and clinicians. The three share one generic repository, service
// and handler parameterized by the entity.
package member

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/domain/reflist"
	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
)

// Store tables of the member entities.
const (
	DiagnosisTable = "diagnosis"
	DrugTable      = "drug"
	ClinicianTable = "clinician"
)

// Member is implemented by *Diagnosis, *Drug and *Clinician.
type Member interface {
	Normalize()
	Validate() error
	Keys() []ingest.Key
	Refs() []ingest.Ref
}

var errNullEntry = errors.New("entry is null")

func validateCommon(listID uuid.UUID, status string) error {
	if listID == uuid.Nil {
		return fmt.Errorf("list_id is required")
	}
	if status != "" && status != lifecycle.Lower.Active && status != lifecycle.Lower.Inactive {
		return fmt.Errorf("status must be active or inactive")
	}
	return nil
}

func required(field, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(v) > max {
		return fmt.Errorf("%s must be at most %d characters", field, max)
	}
	return nil
}

func listRef(id *uuid.UUID, kind reflist.Kind) []ingest.Ref {
	return []ingest.Ref{{Field: "list_id", ID: id, Target: reflist.ListTarget(kind)}}
}

type Diagnosis struct {
	ID            uuid.UUID `json:"id"`
	ICDCode       string    `json:"icd_code"`
	DiagnosisCode string    `json:"diagnosis_code"`
	Description   string    `json:"description"`
	ListID        uuid.UUID `json:"list_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Normalize trims the identity and display fields.
func (d *Diagnosis) Normalize() {
	if d == nil {
		return
	}
	d.ICDCode = strings.TrimSpace(d.ICDCode)
	d.DiagnosisCode = strings.TrimSpace(d.DiagnosisCode)
	d.Description = strings.TrimSpace(d.Description)
}

func (d *Diagnosis) Validate() error {
	if d == nil {
		return errNullEntry
	}
	if err := required("icd_code", d.ICDCode, 32); err != nil {
		return err
	}
	if err := required("diagnosis_code", d.DiagnosisCode, 64); err != nil {
		return err
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("description is required")
	}
	return validateCommon(d.ListID, d.Status)
}

// Keys: icd_code and diagnosis_code are each unique within a list.
func (d *Diagnosis) Keys() []ingest.Key {
	scope := map[string]string{"list_id": d.ListID.String()}
	return []ingest.Key{
		{Field: "icd_code", Value: d.ICDCode, Scope: scope},
		{Field: "diagnosis_code", Value: d.DiagnosisCode, Scope: scope},
	}
}

func (d *Diagnosis) Refs() []ingest.Ref {
	return listRef(&d.ListID, reflist.KindDiagnosis)
}

type Drug struct {
	ID          uuid.UUID `json:"id"`
	NDCDrugCode string    `json:"ndc_drug_code"`
	Name        string    `json:"name"`
	Strength    *string   `json:"strength,omitempty"`
	DosageForm  *string   `json:"dosage_form,omitempty"`
	ListID      uuid.UUID `json:"list_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d *Drug) Normalize() {
	if d == nil {
		return
	}
	d.NDCDrugCode = strings.TrimSpace(d.NDCDrugCode)
	d.Name = strings.TrimSpace(d.Name)
}

func (d *Drug) Validate() error {
	if d == nil {
		return errNullEntry
	}
	if err := required("ndc_drug_code", d.NDCDrugCode, 32); err != nil {
		return err
	}
	if err := required("name", d.Name, 255); err != nil {
		return err
	}
	return validateCommon(d.ListID, d.Status)
}

// Keys: the NDC code is unique across all drugs.
func (d *Drug) Keys() []ingest.Key {
	return []ingest.Key{{Field: "ndc_drug_code", Value: d.NDCDrugCode}}
}

func (d *Drug) Refs() []ingest.Ref {
	return listRef(&d.ListID, reflist.KindDrug)
}

type Clinician struct {
	ID            uuid.UUID `json:"id"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	LicenseNumber string    `json:"license_number"`
	Specialty     *string   `json:"specialty,omitempty"`
	ListID        uuid.UUID `json:"list_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (c *Clinician) Normalize() {
	if c == nil {
		return
	}
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
	c.LicenseNumber = strings.TrimSpace(c.LicenseNumber)
}

func (c *Clinician) Validate() error {
	if c == nil {
		return errNullEntry
	}
	if err := required("first_name", c.FirstName, 128); err != nil {
		return err
	}
	if err := required("last_name", c.LastName, 128); err != nil {
		return err
	}
	if err := required("email", c.Email, 255); err != nil {
		return err
	}
	if !strings.Contains(c.Email, "@") {
		return fmt.Errorf("email %q is not a valid address", c.Email)
	}
	if err := required("license_number", c.LicenseNumber, 64); err != nil {
		return err
	}
	return validateCommon(c.ListID, c.Status)
}

// Keys: email and license number are unique across all clinicians,
// regardless of list.
func (c *Clinician) Keys() []ingest.Key {
	return []ingest.Key{
		{Field: "email", Value: c.Email},
		{Field: "license_number", Value: c.LicenseNumber},
	}
}

func (c *Clinician) Refs() []ingest.Ref {
	return listRef(&c.ListID, reflist.KindClinician)
}

// Filter narrows a listing.
type Filter struct {
	ListID *uuid.UUID
	Status string
}
