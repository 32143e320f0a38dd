// Package pgrepos implements the domain repositories on Postgres with sqlx and squirrel.
package pgrepos

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/propdesk/core"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// withTx runs fn in a transaction, committed only if fn returns no error.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError(ctx, err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = storeError(ctx, tx.Commit(), "committing transaction")
	}()
	return fn(tx)
}

// get builds qb and scans a single row into dest.
func get(ctx context.Context, q sqlx.QueryerContext, dest interface{}, qb squirrel.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

// list builds qb and scans all rows into dest.
func list(ctx context.Context, q sqlx.QueryerContext, dest interface{}, qb squirrel.Sqlizer) error {
	query, args, err := qb.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// exec builds qb and executes it, returning the affected row count.
func exec(ctx context.Context, e sqlx.ExecerContext, qb squirrel.Sqlizer) (int64, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// storeError reports a failed query as a core.RemoteCallError.
// Once ctx is done the context error is kept as the cause instead.
func storeError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	var rErr *core.RemoteCallError
	if errors.As(err, &rErr) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, op)
	}
	return core.NewRemoteCallError("record store: "+op, err)
}

// trapNoRows maps sql.ErrNoRows to notFound.
func trapNoRows(ctx context.Context, err error, notFound error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return storeError(ctx, err, op)
}

// pqCode returns the condition name of a Postgres error, e.g. "unique_violation".
func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name()
	}
	return ""
}

// pqConstraint returns the name of the constraint a Postgres error violated.
func pqConstraint(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// isUUID tells whether id can be compared to a uuid column without a cast error.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
