package db

import (
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

// InsertSQL builds a prepared single-row INSERT returning the given columns.
func InsertSQL(table string, rec goqu.Record, returning ...interface{}) (string, []interface{}, error) {
	query, args, err := dialect.Insert(table).
		Rows(rec).
		Returning(returning...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build insert into %s: %w", table, err)
	}
	return query, args, nil
}

// UpdateSQL builds a prepared UPDATE of the row with id, returning the
// given columns. updated_at is bumped when the table has one.
func UpdateSQL(table string, id uuid.UUID, rec goqu.Record, returning ...interface{}) (string, []interface{}, error) {
	query, args, err := dialect.Update(table).
		Set(rec).
		Where(goqu.I("id").Eq(id.String())).
		Returning(returning...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build update of %s: %w", table, err)
	}
	return query, args, nil
}

// UUIDArg converts an optional id into a query argument, nil for NULL.
func UUIDArg(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

// StringArg converts an optional string into a query argument, nil for NULL.
func StringArg(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
