package ingest

import (
	"fmt"
	"strings"

	"github.com/clinref/clinref/internal/platform/apperr"
)

// Duplicate records a candidate whose key repeats an earlier candidate.
type Duplicate struct {
	Index      int
	FirstIndex int
	Field      string
	Value      string
}

// FindDuplicates scans the batch once, left to right, and returns every
// candidate sharing a key with an earlier one. The first occurrence is
// never reported and each candidate is reported at most once. Blank
// values are ignored.
func FindDuplicates[T any](items []T, keys func(T) []Key) []Duplicate {
	seen := make(map[string]int)
	var dups []Duplicate
	for i, item := range items {
		flagged := false
		for _, k := range keys(item) {
			if strings.TrimSpace(k.Value) == "" {
				continue
			}
			folded := k.Folded()
			first, ok := seen[folded]
			if !ok {
				seen[folded] = i
				continue
			}
			if !flagged {
				dups = append(dups, Duplicate{Index: i, FirstIndex: first, Field: k.Field, Value: k.Value})
				flagged = true
			}
		}
	}
	return dups
}

// CheckDuplicates refuses the whole batch with one validation error that
// lists every offending index.
func CheckDuplicates[T any](entity string, items []T, keys func(T) []Key) error {
	dups := FindDuplicates(items, keys)
	if len(dups) == 0 {
		return nil
	}
	parts := make([]string, 0, len(dups))
	indices := make([]string, 0, len(dups))
	for _, d := range dups {
		parts = append(parts, fmt.Sprintf("index %d repeats index %d (%s=%q)", d.Index, d.FirstIndex, d.Field, d.Value))
		indices = append(indices, fmt.Sprintf("%d (first seen at %d)", d.Index, d.FirstIndex))
	}
	return apperr.Validation("duplicate %s in batch at index %s", entity, strings.Join(indices, ", ")).
		WithDetails("%s", strings.Join(parts, "; "))
}
