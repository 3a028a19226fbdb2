// Package pgutil holds the helpers shared by the postgres storage adapters.
package pgutil

import (
	"database/sql"
	"errors"

	"github.com/ashmarin/weighttrack/internal/adapter/storage"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leporo/sqlf"
	"github.com/r3labs/diff"
)

func ViolatesConstraint(err error, constraintName string) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) &&
		pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) &&
		pgErr.ConstraintName == constraintName
}

// MakeUpdateQuery turns a diff changelog into SET clauses, so an update
// touches only the columns that actually changed.
func MakeUpdateQuery(stmt *sqlf.Stmt, updates diff.Changelog) *sqlf.Stmt {
	for _, upd := range updates {
		if upd.Type != "update" {
			panic("invalid update type " + upd.Type)
		}
		if len(upd.Path) > 1 {
			panic("cannot process updates in nested structures")
		}

		stmt = stmt.Set(upd.Path[0], upd.To)
	}
	return stmt
}

func AssertUpdated(res sql.Result, err error, notUpdatedError error) error {
	if err != nil {
		return storage.InternalError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storage.InternalError(err)
	}

	if affected == 0 {
		return notUpdatedError
	}
	return nil
}
