package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinref/clinref/internal/platform/apperr"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique-constraint violation
// and returns the constraint name.
func IsUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// IsForeignKeyViolation reports whether err is a foreign-key violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// MapError converts store errors into the apperr taxonomy. entity names
// the row kind in messages, e.g. "diagnosis list".
func MapError(err error, entity string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found", entity)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			e := apperr.Conflict("%s already exists (constraint %s)", entity, pgErr.ConstraintName)
			e.Details = pgErr.Detail
			e.Err = err
			return e
		case foreignKeyViolation:
			e := apperr.Referential("%s references a row that does not exist", entity)
			e.Details = pgErr.Detail
			e.Err = err
			return e
		}
	}
	return apperr.Transient("failed to access "+entity, err)
}
