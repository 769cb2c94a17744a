package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolationCode is the SQLSTATE Postgres reports when an insert hits
// an existing unique or primary key.
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err carries a unique constraint
// violation. Write paths that lock by key treat it as a lost creation race
// and retry against the now-existing row.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
