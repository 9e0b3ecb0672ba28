package payer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/ingest"
	"github.com/clinref/clinref/internal/lifecycle"
)

const Table = "payer"

// Payer is an insurer or funding body a prescription may be billed to.
type Payer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payer) Normalize() {
	if p == nil {
		return
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Code = strings.TrimSpace(p.Code)
}

func (p *Payer) Validate() error {
	if p == nil {
		return fmt.Errorf("entry is null")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if len(p.Code) > 64 {
		return fmt.Errorf("code must be at most 64 characters")
	}
	if p.Status != "" && p.Status != lifecycle.Upper.Active && p.Status != lifecycle.Upper.Inactive {
		return fmt.Errorf("status must be ACTIVE or INACTIVE")
	}
	return nil
}

func (p *Payer) Keys() []ingest.Key {
	return []ingest.Key{
		{Field: "name", Value: p.Name},
		{Field: "code", Value: p.Code},
	}
}
