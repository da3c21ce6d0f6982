package db

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/kasir", migrateURL("postgres://u:p@localhost:5432/kasir"))
	require.Equal(t, "pgx5://localhost/kasir", migrateURL("postgresql://localhost/kasir"))
	require.Equal(t, "pgx5://localhost/kasir", migrateURL("pgx5://localhost/kasir"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Contains(t, names, "0001_init.up.sql")
	require.Contains(t, names, "0001_init.down.sql")
	require.Contains(t, names, "0002_audit_log.up.sql")
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert sale: %w", &pgconn.PgError{Code: "23505"})
	require.True(t, IsUniqueViolation(wrapped))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("boom")))
}
