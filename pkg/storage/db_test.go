package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func textEntry(content string, at time.Time) *Entry {
	return &Entry{
		Kind:          KindText,
		Content:       content,
		CreatedAt:     at,
		SourceApp:     "Editor",
		SourceProcess: "editor",
	}
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, dbPath, db.Path())

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	_, err = os.Stat(ArchivePath(dbPath))
	assert.NoError(t, err, "archive shard should be created next to the store")
}

func TestOpen_WithoutArchive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(dbPath, WithoutArchive())
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(ArchivePath(dbPath))
	assert.True(t, os.IsNotExist(err))

	_, err = db.ArchiveOlderThan(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoArchive)
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "history.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
}

func TestArchivePath(t *testing.T) {
	assert.Equal(t, "/data/history.archive.db", ArchivePath("/data/history.db"))
	assert.Equal(t, "/data/history.archive", ArchivePath("/data/history"))
}

func TestInitialize_Pragmas(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var autoVacuum int
	require.NoError(t, db.conn.QueryRow("PRAGMA auto_vacuum").Scan(&autoVacuum))
	assert.Equal(t, 2, autoVacuum, "auto_vacuum should be INCREMENTAL")
}

func TestInitialize_CreatesTables(t *testing.T) {
	db := setupTestDB(t)

	for _, name := range []string{"schema_version", "entries", "entries_fts", "state"} {
		var count int
		err := db.conn.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "missing %s", name)
	}

	var version int
	require.NoError(t, db.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, CurrentSchema, version)
}

func TestMigrate_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db1, err := Open(dbPath)
	require.NoError(t, err)
	_, err = db1.Save(context.Background(), textEntry("persisted", time.Now()))
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	count, err := db2.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var migrations int
	require.NoError(t, db2.conn.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&migrations))
	assert.Equal(t, 1, migrations)
}

func TestGetSchema(t *testing.T) {
	assert.NotEmpty(t, GetSchema(SchemaVersion1))
	assert.Empty(t, GetSchema(0))
	assert.Empty(t, GetSchema(99))
}
