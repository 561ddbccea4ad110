package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint breach.
const uniqueViolation = "23505"

// MapError maps sql.ErrNoRows to notFound and unique violations to
// duplicate. Other errors, including nil, pass through.
func MapError(err, notFound, duplicate error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case IsUniqueViolation(err, ""):
		return duplicate
	}
	return err
}

// IsUniqueViolation reports whether err is a unique violation on constraint,
// or on any constraint when constraint is empty.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
