package ingest

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinref/clinref/internal/platform/apperr"
	"github.com/clinref/clinref/internal/platform/db"
)

// CheckUnique looks up each identity key of one candidate in the store.
// The first collision aborts with a conflict naming field, value and
// index. exclude skips the row being updated.
func CheckUnique(ctx context.Context, lookup Lookup, entity, table string, index int, keys []Key, exclude uuid.UUID) error {
	for _, k := range keys {
		if strings.TrimSpace(k.Value) == "" {
			continue
		}
		exists, err := lookup.KeyExists(ctx, table, k, exclude)
		if err != nil {
			return db.MapError(err, entity)
		}
		if exists {
			return apperr.Conflict("%s with %s %q already exists%s", entity, k.Field, k.Value, at(index))
		}
	}
	return nil
}

// CheckUniqueAll runs CheckUnique for every candidate in batch order.
func CheckUniqueAll[T any](ctx context.Context, lookup Lookup, entity, table string, items []T, keys func(T) []Key) error {
	for i, item := range items {
		if err := CheckUnique(ctx, lookup, entity, table, i, keys(item), uuid.Nil); err != nil {
			return err
		}
	}
	return nil
}
