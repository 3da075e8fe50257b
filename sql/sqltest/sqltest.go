// Package sqltest provides the per-test CockroachDB harness used by every
// store package's tests: each test gets its own freshly created database
// against a CockroachDB instance reachable at
// $WOWMINIMAPS_TEST_COCKROACHDB (a "host:port" pair), with the full
// schema.DDL applied before the test body runs. Tests that need it skip
// cleanly when the environment variable is unset rather than failing, so
// `go test ./...` stays usable without a database on hand.
package sqltest

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jimbomcb/wow-minimaps/sql/schema"
)

const testCockroachDBEnvVar = "WOWMINIMAPS_TEST_COCKROACHDB"

// NewCockroachDBForTests returns a pool connected to a newly created,
// empty database with the production schema applied, or skips t if no test
// CockroachDB instance is configured.
func NewCockroachDBForTests(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	addr := os.Getenv(testCockroachDBEnvVar)
	if addr == "" {
		t.Skipf("skipping: %s not set", testCockroachDBEnvVar)
	}

	adminURL := fmt.Sprintf("postgres://root@%s/defaultdb?sslmode=disable", addr)
	admin, err := pgxpool.New(ctx, adminURL)
	if err != nil {
		t.Fatalf("sqltest: connecting to admin database: %v", err)
	}
	defer admin.Close()

	dbName := fmt.Sprintf("test_%d", rand.Uint64())
	if _, err := admin.Exec(ctx, fmt.Sprintf(`CREATE DATABASE "%s"`, dbName)); err != nil {
		t.Fatalf("sqltest: creating test database: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), fmt.Sprintf(`DROP DATABASE "%s" CASCADE`, dbName))
	})

	dbURL := fmt.Sprintf("postgres://root@%s/%s?sslmode=disable", addr, dbName)
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("sqltest: connecting to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, schema.EncodeBuildVersionFunc); err != nil {
		t.Fatalf("sqltest: installing encode_build_version: %v", err)
	}
	if _, err := pool.Exec(ctx, schema.DecodeBuildVersionFunc); err != nil {
		t.Fatalf("sqltest: installing decode_build_version: %v", err)
	}
	if _, err := pool.Exec(ctx, schema.DDL); err != nil {
		t.Fatalf("sqltest: applying schema: %v", err)
	}
	return pool
}
