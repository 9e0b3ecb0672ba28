package authority

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/domain/reflist"
	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
)

const (
	Table       = "health_authority"
	ConfigTable = "health_authority_config"
)

type HealthAuthority struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *HealthAuthority) Normalize() {
	if a == nil {
		return
	}
	a.Name = strings.TrimSpace(a.Name)
	a.Code = strings.TrimSpace(a.Code)
}

func (a *HealthAuthority) Validate() error {
	if a == nil {
		return fmt.Errorf("entry is null")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(a.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if len(a.Code) > 64 {
		return fmt.Errorf("code must be at most 64 characters")
	}
	if a.Status != "" && a.Status != lifecycle.Upper.Active && a.Status != lifecycle.Upper.Inactive {
		return fmt.Errorf("status must be ACTIVE or INACTIVE")
	}
	return nil
}

func (a *HealthAuthority) Keys() []ingest.Key {
	return []ingest.Key{
		{Field: "name", Value: a.Name},
		{Field: "code", Value: a.Code},
	}
}

// Config binds a health authority to one list of each kind.
type Config struct {
	ID                uuid.UUID `json:"id"`
	HealthAuthorityID uuid.UUID `json:"health_authority_id"`
	DrugListID        uuid.UUID `json:"drug_list_id"`
	DiagnosisListID   uuid.UUID `json:"diagnosis_list_id"`
	ClinicianListID   uuid.UUID `json:"clinician_list_id"`
	CreatedAt         time.Time `json:"created_at"`
}

func (c *Config) Validate() error {
	switch {
	case c.HealthAuthorityID == uuid.Nil:
		return fmt.Errorf("health_authority_id is required")
	case c.DrugListID == uuid.Nil:
		return fmt.Errorf("drug_list_id is required")
	case c.DiagnosisListID == uuid.Nil:
		return fmt.Errorf("diagnosis_list_id is required")
	case c.ClinicianListID == uuid.Nil:
		return fmt.Errorf("clinician_list_id is required")
	}
	return nil
}

// Refs returns the authority and the three list references, each list
// pinned to its kind.
func (c *Config) Refs() []ingest.Ref {
	return []ingest.Ref{
		{Field: "health_authority_id", ID: &c.HealthAuthorityID, Target: ingest.Target{Entity: "health authority", Table: Table}},
		{Field: "drug_list_id", ID: &c.DrugListID, Target: reflist.ListTarget(reflist.KindDrug)},
		{Field: "diagnosis_list_id", ID: &c.DiagnosisListID, Target: reflist.ListTarget(reflist.KindDiagnosis)},
		{Field: "clinician_list_id", ID: &c.ClinicianListID, Target: reflist.ListTarget(reflist.KindClinician)},
	}
}
