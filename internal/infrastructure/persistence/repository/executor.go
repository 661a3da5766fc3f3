// Package repository contains the SQLite implementations of the
// persistence ports. All conditional updates use compare-and-swap
// WHERE clauses; zero rows affected surfaces as document.ErrConflict.
package repository

import (
	"context"
	"database/sql"
)

type contextKey string

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// getExecutor returns the ambient transaction when one is carried in the
// context, otherwise the plain connection
func getExecutor(ctx context.Context, db *sql.DB) executor {
	if tx, ok := ctx.Value(contextKey("tx")).(*sql.Tx); ok {
		return tx
	}
	return db
}
