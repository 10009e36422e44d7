package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	if strings.Contains(msg, "duplicate key value") {
		return true
	}
	// sqlite (tests) phrases the same condition differently
	return strings.Contains(msg, "UNIQUE constraint failed")
}

// IsExclusionViolation reports whether the error is a Postgres exclusion
// constraint violation (SQLSTATE 23P01), as raised by the appointments
// no-overlap constraint.
func IsExclusionViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == "23P01"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == "23P01"
	}
	return strings.Contains(err.Error(), "exclusion constraint")
}
