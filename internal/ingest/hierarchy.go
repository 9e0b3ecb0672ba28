package ingest

import (
	"context"
	"fmt"

	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

// Resolve checks that every non-nil reference of one candidate points at
// an existing row. index is the batch position used in messages; pass a
// negative index for single-row operations.
func Resolve(ctx context.Context, lookup Lookup, entity string, index int, refs []Ref) error {
	for _, ref := range refs {
		if ref.ID == nil {
			continue
		}
		ok, err := lookup.RefExists(ctx, ref)
		if err != nil {
			return db.MapError(err, ref.Target.Entity)
		}
		if !ok {
			return apperr.Referential("%s %s not found for %s%s", ref.Target.Entity, ref.ID, ref.Field, at(index)).
				WithDetails("rejected %s%s", entity, at(index))
		}
	}
	return nil
}

// ResolveAll runs Resolve for every candidate in batch order.
func ResolveAll[T any](ctx context.Context, lookup Lookup, entity string, items []T, refs func(T) []Ref) error {
	if refs == nil {
		return nil
	}
	for i, item := range items {
		if err := Resolve(ctx, lookup, entity, i, refs(item)); err != nil {
			return err
		}
	}
	return nil
}

func at(index int) string {
	if index < 0 {
		return ""
	}
	return fmt.Sprintf(" at index %d", index)
}
