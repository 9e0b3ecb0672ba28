package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
)

var dialect = goqu.Dialect("postgres")

// Dialect returns the goqu postgres dialect used to build dynamic queries.
func Dialect() goqu.DialectWrapper {
	return dialect
}

// FoldedLookup describes an existence check for a row whose Column equals
// Value case-insensitively and ignoring surrounding whitespace, optionally narrowed by exact-match Scope columns
// and excluding one id.
type FoldedLookup struct {
	Table   string
	Column  string
	Value   string
	Scope   map[string]interface{}
	Exclude uuid.UUID
}

// SQL builds the EXISTS query for the lookup.
func (l FoldedLookup) SQL() (string, []interface{}, error) {
	where := []exp.Expression{
		goqu.Func("LOWER", goqu.Func("TRIM", goqu.I(l.Column))).Eq(strings.ToLower(strings.TrimSpace(l.Value))),
	}
	for col, v := range l.Scope {
		where = append(where, goqu.I(col).Eq(v))
	}
	if l.Exclude != uuid.Nil {
		where = append(where, goqu.I("id").Neq(l.Exclude.String()))
	}

	inner, args, err := dialect.From(l.Table).
		Select(goqu.L("1")).
		Where(where...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build lookup on %s.%s: %w", l.Table, l.Column, err)
	}
	return "SELECT EXISTS (" + inner + ")", args, nil
}

// ExistsFolded runs a FoldedLookup.
func ExistsFolded(ctx context.Context, q Querier, l FoldedLookup) (bool, error) {
	query, args, err := l.SQL()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := q.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ExistsByID reports whether table holds a row with id, narrowed by scope.
func ExistsByID(ctx context.Context, q Querier, table string, id uuid.UUID, scope map[string]interface{}) (bool, error) {
	ex := goqu.Ex{"id": id.String()}
	for col, v := range scope {
		ex[col] = v
	}
	inner, args, err := dialect.From(table).
		Select(goqu.L("1")).
		Where(ex).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build id lookup on %s: %w", table, err)
	}
	var exists bool
	if err := q.QueryRow(ctx, "SELECT EXISTS ("+inner+")", args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Filter is an optional equality filter for listing queries.
type Filter struct {
	Column string
	Value  interface{}
	Folded bool
}

// ListSQL builds a paginated SELECT plus its COUNT for table.
func ListSQL(table string, cols []interface{}, filters []Filter, orderBy string, limit, offset int) (dataSQL string, dataArgs []interface{}, countSQL string, countArgs []interface{}, err error) {
	ds := dialect.From(table).Prepared(true)
	for _, f := range filters {
		if f.Folded {
			s, _ := f.Value.(string)
			ds = ds.Where(goqu.Func("LOWER", goqu.I(f.Column)).Eq(strings.ToLower(s)))
			continue
		}
		ds = ds.Where(goqu.I(f.Column).Eq(f.Value))
	}

	countSQL, countArgs, err = ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("build count on %s: %w", table, err)
	}
	dataSQL, dataArgs, err = ds.Select(cols...).
		Order(goqu.I(orderBy).Asc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("build list on %s: %w", table, err)
	}
	return dataSQL, dataArgs, countSQL, countArgs, nil
}
