package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes we translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx so lookups can run inside or outside a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgErrCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// isUniqueViolation reports a 23505; when constraint is non-empty it must match too.
func isUniqueViolation(err error, constraint string) bool {
	code, name := pgErrCode(err)
	if code != pgUniqueViolation {
		return false
	}
	return constraint == "" || constraint == name
}

func isForeignKeyViolation(err error) bool {
	code, _ := pgErrCode(err)
	return code == pgForeignKeyViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
