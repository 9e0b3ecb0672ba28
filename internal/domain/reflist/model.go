package reflist

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
)

// Kind is the member type a List groups.
type Kind string

const (
	KindDiagnosis Kind = "diagnosis"
	KindDrug      Kind = "drug"
	KindClinician Kind = "clinician"
)

// Kinds lists every List kind in route order.
func Kinds() []Kind {
	return []Kind{KindDiagnosis, KindDrug, KindClinician}
}

func (k Kind) Valid() bool {
	switch k {
	case KindDiagnosis, KindDrug, KindClinician:
		return true
	}
	return false
}

// Entity names the kind in messages, e.g. "drug list".
func (k Kind) Entity() string {
	return string(k) + " list"
}

// BodyField is the envelope key of a create request, e.g. "drugList".
func (k Kind) BodyField() string {
	return string(k) + "List"
}

// Path is the route segment, e.g. "/drug-list".
func (k Kind) Path() string {
	return "/" + string(k) + "-list"
}

const Table = "reference_list"

// List is a named, coded grouping of reference members.
type List struct {
	ID           uuid.UUID  `json:"id"`
	Kind         Kind       `json:"kind"`
	Name         string     `json:"name"`
	Code         string     `json:"code"`
	Description  *string    `json:"description,omitempty"`
	Status       string     `json:"status"`
	ParentListID *uuid.UUID `json:"parent_list_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Normalize trims name and code so stored values equal their folded keys.
func (l *List) Normalize() {
	if l == nil {
		return
	}
	l.Name = strings.TrimSpace(l.Name)
	l.Code = strings.TrimSpace(l.Code)
}

func (l *List) Validate() error {
	if !l.Kind.Valid() {
		return fmt.Errorf("kind must be one of diagnosis, drug, clinician")
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(l.Name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	if strings.TrimSpace(l.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if len(l.Code) > 64 {
		return fmt.Errorf("code must be at most 64 characters")
	}
	if l.Status != "" && l.Status != lifecycle.Upper.Active && l.Status != lifecycle.Upper.Inactive {
		return fmt.Errorf("status must be ACTIVE or INACTIVE")
	}
	return nil
}

// Keys returns the identity keys of a List: name and code, each unique
// within the List's kind.
func (l *List) Keys() []ingest.Key {
	scope := map[string]string{"kind": string(l.Kind)}
	return []ingest.Key{
		{Field: "name", Value: l.Name, Scope: scope},
		{Field: "code", Value: l.Code, Scope: scope},
	}
}

// Refs returns the parent reference, which must point at a List of the
// same kind.
func (l *List) Refs() []ingest.Ref {
	return []ingest.Ref{{
		Field:  "parent_list_id",
		ID:     l.ParentListID,
		Target: ListTarget(l.Kind),
	}}
}

// ListTarget is the reference target for a List of kind k. Other packages
// use it to validate list references.
func ListTarget(k Kind) ingest.Target {
	return ingest.Target{
		Entity: k.Entity(),
		Table:  Table,
		Scope:  map[string]string{"kind": string(k)},
	}
}

// Filter narrows a listing.
type Filter struct {
	Kind         Kind
	Status       string
	Name         string
	ParentListID *uuid.UUID
}
