// Package sql holds the store implementations against CockroachDB/Postgres,
// built directly on jackc/pgx/v5's pool type.
package sql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/errs"
)

// Open establishes a connection pool against url (a postgres:// DSN,
// "database_url").
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errs.WrapFmt(err, "sql: opening pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapFmt(err, "sql: pinging pool")
	}
	return pool, nil
}
