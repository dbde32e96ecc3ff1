package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateRejectsBadInput(t *testing.T) {
	t.Parallel()

	require.ErrorContains(t, Migrate("", DirectionUp), "DATABASE_URL")

	for _, dir := range []string{"", "UP", "sideways"} {
		t.Run(dir, func(t *testing.T) {
			t.Parallel()
			require.ErrorContains(t, Migrate("postgres://localhost/theshop", dir), "direction")
		})
	}
}

func TestMigrationFSPairsUpAndDown(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(MigrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(MigrationFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))

	body, err := fs.ReadFile(MigrationFS, ups[0])
	require.NoError(t, err)
	require.Contains(t, string(body), "outbox_messages")
}
