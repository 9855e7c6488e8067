package session

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestStore opens an in-memory, migrated store for use in tests.
func NewTestStore(t *testing.T) *SqliteStore {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	require.NoError(t, Migrate(db))

	return &SqliteStore{db: db}
}
