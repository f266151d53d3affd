package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the stores translate.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

// MapError translates a database error into a domain error. sql.ErrNoRows
// becomes notFound and a unique violation becomes duplicate. A check
// constraint violation becomes invalid when one is given. Anything else is
// returned as is.
func MapError(err, notFound, duplicate error, invalid ...error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return duplicate
	case codeCheckViolation:
		if len(invalid) > 0 {
			return invalid[0]
		}
	}
	return err
}
