package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/store"
	"github.com/chatvault/chatvault/internal/store/storetest"
)

func TestSQLiteCompliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		path := filepath.Join(t.TempDir(), "chatvault.db")
		db, err := Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewWithDB(db)
	})
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "chatvault.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Ping())
}
