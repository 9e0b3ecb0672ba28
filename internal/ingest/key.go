// Package ingest implements the bulk reference-data pipeline: intra-batch
// duplicate detection, hierarchy resolution, case-insensitive uniqueness
// checks against the store and an all-or-nothing batch insert.
//
// Entities plug in through a Spec that extracts identity keys and
// references from a candidate; the pipeline itself knows nothing about
// diagnoses, drugs or lists.
package ingest

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Key is one identity value of a candidate. Field doubles as the column
// name. Scope narrows the key with exact-match columns, e.g. list_id for
// codes unique per list.
type Key struct {
	Field string
	Value string
	Scope map[string]string
}

// Folded returns the canonical, case-folded form of the key including its
// scope, suitable as a map key.
func (k Key) Folded() string {
	var b strings.Builder
	b.WriteString(k.Field)
	if len(k.Scope) > 0 {
		cols := make([]string, 0, len(k.Scope))
		for col := range k.Scope {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			b.WriteString("|")
			b.WriteString(col)
			b.WriteString("=")
			b.WriteString(strings.ToLower(k.Scope[col]))
		}
	}
	b.WriteString("|")
	b.WriteString(Fold(k.Value))
	return b.String()
}

// Fold trims and lower-cases an identity value.
func Fold(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Target names the table a reference points into. Scope pins extra
// columns, e.g. kind=drug for a drug list.
type Target struct {
	Entity string
	Table  string
	Scope  map[string]string
}

// Ref is a candidate's reference to another row. A nil ID is always valid.
type Ref struct {
	Field  string
	ID     *uuid.UUID
	Target Target
}

// Lookup answers the store questions the pipeline asks. Implementations
// must honor a transaction bound to ctx.
type Lookup interface {
	// KeyExists reports whether table holds a row matching key
	// case-insensitively, ignoring the row with id exclude.
	KeyExists(ctx context.Context, table string, key Key, exclude uuid.UUID) (bool, error)
	// RefExists reports whether the referenced row exists.
	RefExists(ctx context.Context, ref Ref) (bool, error)
}
