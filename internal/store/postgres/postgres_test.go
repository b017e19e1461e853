package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/store/storetest"
)

// Requires a reachable PostgreSQL instance; set CHATVAULT_TEST_POSTGRES_DSN
// to run. Each suite subtest gets a truncated schema, not a fresh database.
func TestPostgresCompliance(t *testing.T) {
	dsn := os.Getenv("CHATVAULT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHATVAULT_TEST_POSTGRES_DSN not set; skipping postgres compliance suite")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db))

	storetest.Run(t, func(t *testing.T) store.Store {
		_, err := db.Exec(`TRUNCATE archives, groups, contacts, accounts, conversations, speakers, replies RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
		return NewWithDB(db)
	})
}
