package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_DefaultsToZero(t *testing.T) {
	db := setupTestDB(t)

	c, err := db.LoadCursor(context.Background())
	require.NoError(t, err)
	assert.Zero(t, c.Index)
	assert.True(t, c.CommittedAt.IsZero())
}

func TestCursor_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 42)

	db, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.SaveCursor(ctx, Cursor{Index: 3, CommittedAt: at}))
	require.NoError(t, db.SaveCursor(ctx, Cursor{Index: 4, CommittedAt: at}))
	require.NoError(t, db.Close())

	db, err = Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	c, err := db.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Index)
	assert.True(t, c.CommittedAt.Equal(at))
}
