package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplySQLiteMigrations(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, ApplyMigrations(conn, "sqlite"))
	require.NoError(t, ApplyMigrations(conn, "sqlite"))

	for _, table := range []string{"entries", "pages", "pages_fts", "chapters", "index_states"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestApplyMigrationsUnknownDriver(t *testing.T) {
	conn, err := OpenSQLite(filepath.Join(t.TempDir(), "library.db"))
	require.NoError(t, err)
	defer conn.Close()
	require.Error(t, ApplyMigrations(conn, "mysql"))
}
