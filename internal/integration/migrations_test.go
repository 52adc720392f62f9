package integration

import (
	"context"
	"testing"

	"github.com/aliuyar1234/pmdash/internal/db"
	"github.com/stretchr/testify/require"
)

func TestIntegration_MigrationsApplyToFreshPostgres(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	for _, table := range []string{"users", "profiles", "companies", "company_members", "invitations", "projects", "tasks", "chat_rooms", "chat_room_members", "messages", "audit_log"} {
		var count int
		err := pool.QueryRow(context.Background(), `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		`, table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "missing table %s", table)
	}
}

func TestIntegration_MigrationsAreIdempotent(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	require.NoError(t, db.RunMigrations(context.Background(), pool))
}
