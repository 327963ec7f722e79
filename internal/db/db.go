// Package db provides the SQL sample backends. SampleRepository stores
// samples in PostgreSQL through the DBTX interface, satisfied by both
// *pgxpool.Pool and pgx.Tx. SQLiteStore keeps the same schema in an embedded
// modernc.org/sqlite database for single-host deployments. Both implement
// store.Store and share the versioned migrations applied by Migrator.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
