// Package pgutils contains small PostgreSQL helpers shared by repositories.
package pgutils

import (
	"strings"
)

// PostgreSQL error codes, class 23 (integrity constraint violation).
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"
)

// IsUniqueViolation reports whether err is a unique constraint violation
// (23505). The graph store maps these to apperror.ErrDuplicate: two writers
// upserting the same (label, key) or the same edge triple race on the index.
func IsUniqueViolation(err error) bool {
	return containsErrorCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation reports whether err is a foreign key violation (23503),
// e.g. an edge insert whose endpoint was deleted concurrently.
func IsForeignKeyViolation(err error) bool {
	return containsErrorCode(err, CodeForeignKeyViolation)
}

// IsNotNullViolation reports whether err is a not-null violation (23502).
func IsNotNullViolation(err error) bool {
	return containsErrorCode(err, CodeNotNullViolation)
}

// containsErrorCode matches the SQLSTATE in the driver error text. The pgx
// stdlib wrapper does not always expose *pgconn.PgError through errors.As once
// bun has wrapped it, so string matching stays the lowest common denominator.
func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return len(errStr) > 0 && (strings.Contains(errStr, code) || strings.Contains(errStr, "SQLSTATE "+code))
}
