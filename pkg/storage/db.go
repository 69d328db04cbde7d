package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB wraps the live store and its archive shard.
type DB struct {
	conn    *sql.DB
	archive *sql.DB
	path    string

	// writeMu serialises dedup-and-touch against concurrent writers.
	writeMu sync.Mutex
	now     func() time.Time
}

// Option configures Open.
type Option func(*options)

type options struct {
	now       func() time.Time
	noArchive bool
}

// WithClock overrides the time source used for archiving cutoffs.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithoutArchive opens only the live store.
func WithoutArchive() Option {
	return func(o *options) { o.noArchive = true }
}

// ArchivePath returns the archive shard path for a live store path:
// history.db becomes history.archive.db.
func ArchivePath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".archive" + ext
}

// Open opens or creates the store at path together with its archive shard.
func Open(path string, opts ...Option) (*DB, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := openConn(path)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, path: path, now: o.now}

	if !o.noArchive {
		archive, err := openConn(ArchivePath(path))
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		db.archive = archive

		if err := db.reserveArchivedIDs(); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// reserveArchivedIDs raises the live id sequence to at least the highest
// archived id. A restored live store starts from the backup's sequence
// while the archive keeps its own rows, and ids must stay unique across
// both.
func (db *DB) reserveArchivedIDs() error {
	var top int64
	if err := db.archive.QueryRow("SELECT coalesce(max(id), 0) FROM entries").Scan(&top); err != nil {
		return fmt.Errorf("failed to read archive ids: %w", err)
	}
	if top == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE sqlite_sequence SET seq = max(seq, ?) WHERE name = 'entries'", top)
	if err != nil {
		return fmt.Errorf("failed to reserve archived ids: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.Exec("INSERT INTO sqlite_sequence (name, seq) VALUES ('entries', ?)", top); err != nil {
			return fmt.Errorf("failed to reserve archived ids: %w", err)
		}
	}
	return tx.Commit()
}

// openConn opens one SQLite file and brings its schema up to date.
func openConn(path string) (*sql.DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initialize(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	_ = os.Chmod(path, 0600)
	return conn, nil
}

// initialize sets up the database schema and configuration
func initialize(conn *sql.DB) error {
	// Only takes effect before the first table is created
	if _, err := conn.Exec("PRAGMA auto_vacuum=INCREMENTAL"); err != nil {
		return fmt.Errorf("failed to set auto_vacuum: %w", err)
	}

	var mode string
	if err := conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("failed to enable WAL mode: journal_mode is %q", mode)
	}

	if err := migrate(conn); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// migrate applies database migrations
func migrate(conn *sql.DB) error {
	currentVersion, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	if currentVersion > CurrentSchema {
		return fmt.Errorf("database schema v%d is newer than supported v%d", currentVersion, CurrentSchema)
	}
	if currentVersion < CurrentSchema {
		return applyMigrations(conn, currentVersion, CurrentSchema)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func getSchemaVersion(conn *sql.DB) (int, error) {
	var tableExists bool
	err := conn.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM sqlite_master
			WHERE type='table' AND name='schema_version'
		)
	`).Scan(&tableExists)
	if err != nil {
		return 0, err
	}

	if !tableExists {
		return 0, nil
	}

	var version sql.NullInt64
	if err := conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, err
	}

	return int(version.Int64), nil
}

// applyMigrations applies all migrations from 'from' to 'to' version
func applyMigrations(conn *sql.DB, from, to int) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for version := from + 1; version <= to; version++ {
		schema := GetSchema(version)
		if schema == "" {
			return fmt.Errorf("no schema found for version %d", version)
		}

		if _, err := tx.Exec(schema); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_version (version, applied_at) VALUES (?, strftime('%s', 'now'))",
			version,
		); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", version, err)
		}
	}

	return tx.Commit()
}

// Close closes the live store and the archive shard.
func (db *DB) Close() error {
	var firstErr error
	if db.archive != nil {
		firstErr = db.archive.Close()
	}
	if db.conn != nil {
		if err := db.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}
