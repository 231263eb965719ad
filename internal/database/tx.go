package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

type txKey struct{}

// WithTx runs fn inside a transaction carried by the returned context. When
// ctx already carries one, fn joins it and the outermost caller commits.
func WithTx(ctx context.Context, db *bun.DB, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return fn(ctx)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn returns the transaction in ctx, or db when there is none.
func Conn(ctx context.Context, db *bun.DB) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return db
}

func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bun.Tx)
	return ok
}

// LockForUpdate adds FOR UPDATE on dialects that support row locks. SQLite
// serialises writers on its own.
func LockForUpdate(idb bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if idb.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}
	return q
}

// Affected returns RowsAffected, the outcome of every compare-and-set update.
func Affected(res sql.Result) (int64, error) {
	return res.RowsAffected()
}

func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514"
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

// IsInvalidInput reports a value Postgres could not parse for its column
// type, such as a malformed uuid in an id lookup.
func IsInvalidInput(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "22P02"
	}
	return false
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsNotFound is true when a lookup matched nothing, including lookups by an
// id that cannot exist because it does not parse.
func IsNotFound(err error) bool {
	return IsNoRows(err) || IsInvalidInput(err)
}
