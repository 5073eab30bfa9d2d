package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syncstorage.json5")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `{
	// Local dev database.
	database_url: "postgresql://root@localhost:26257/sync?sslmode=disable",
	pool_max_size: 5,
}`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int32(5), c.PoolMaxSize)
	// Untouched fields keep their defaults.
	require.Equal(t, int64(2*60*60), c.BatchTTLSeconds)
	require.Equal(t, 2*1024*1024, c.MaxPayloadBytes)
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("SYNC_TEST_DATABASE_URL", "postgresql://root@db:26257/sync")
	path := writeConfig(t, `{database_url: "${SYNC_TEST_DATABASE_URL}"}`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgresql://root@db:26257/sync", c.DatabaseURL)
}

func TestLoad_MissingDatabaseURLFails(t *testing.T) {
	path := writeConfig(t, `{pool_max_size: 5}`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "database_url")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	c := New()
	c.DatabaseURL = "postgresql://root@localhost/sync"
	require.NoError(t, c.Validate())

	c.BatchTTLSeconds = 0
	require.Error(t, c.Validate())
	c.BatchTTLSeconds = 10

	c.QuotaEnabled = true
	c.QuotaBytesPerUser = 0
	require.Error(t, c.Validate())
}

func TestLimits_SubsetOfConfig(t *testing.T) {
	c := New()
	l := c.Limits()
	require.Equal(t, c.MaxPayloadBytes, l.MaxPayloadBytes)
	require.Equal(t, c.MaxTotalRecords, l.MaxTotalRecords)
}
