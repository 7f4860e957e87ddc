package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "migrations/0001_init.sql", names[0])

	body, err := migrationFS.ReadFile(names[0])
	require.NoError(t, err)
	schema := string(body)
	for _, table := range []string{"users", "role_assignments", "approval_subjects", "approval_logs", "audit_logs"} {
		require.Truef(t, strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" "), "missing table %s", table)
	}
	require.Contains(t, schema, "WHERE is_active")
}
