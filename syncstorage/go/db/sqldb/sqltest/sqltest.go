// Package sqltest brings up a fresh database for a test.
package sqltest

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/10allday-services/syncstorage/syncstorage/go/db/sqldb/schema"
)

// hostEnvVar points at a CockroachDB reachable from the test, e.g. a local
// `cockroach start-single-node --insecure`.
const hostEnvVar = "COCKROACHDB_EMULATOR_HOST"

// NewCockroachDBForTests creates a uniquely named database, applies the
// schema, and returns a pool connected to it. The database is dropped when
// the test ends. Tests are skipped when no database host is configured.
func NewCockroachDBForTests(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	host := os.Getenv(hostEnvVar)
	if host == "" {
		t.Skipf("Skipping; set %s to run database tests.", hostEnvVar)
	}

	dbName := fmt.Sprintf("sync_test_%d", rand.Uint64())
	admin, err := pgxpool.Connect(ctx, fmt.Sprintf("postgresql://root@%s/defaultdb?sslmode=disable", host))
	require.NoError(t, err)
	_, err = admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)

	pool, err := pgxpool.Connect(ctx, fmt.Sprintf("postgresql://root@%s/%s?sslmode=disable", host, dbName))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, schema.Schema)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s CASCADE", dbName))
		admin.Close()
	})
	return pool
}
