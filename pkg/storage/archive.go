package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoArchive is returned by archive operations on a store opened
// WithoutArchive.
var ErrNoArchive = errors.New("archive shard not open")

// ErrIDConflict is returned when a moved entry's id is held by a different
// entry in the destination store.
var ErrIDConflict = errors.New("entry id already in use")

const archiveBatch = 200

// ArchiveOlderThan moves unpinned entries older than days into the archive
// shard, preserving ids. Rows are written to the archive before they are
// removed from the live store, so an interrupted run is finished by the
// next one.
func (db *DB) ArchiveOlderThan(ctx context.Context, days int) (int64, error) {
	if db.archive == nil {
		return 0, ErrNoArchive
	}
	if days < 0 {
		return 0, fmt.Errorf("invalid archive age: %d days", days)
	}
	cutoff := db.now().Add(-time.Duration(days) * 24 * time.Hour).UnixNano()

	var moved int64
	for {
		batch, err := db.archiveCandidates(ctx, cutoff)
		if err != nil {
			return moved, err
		}
		if len(batch) == 0 {
			return moved, nil
		}
		if err := db.moveEntries(ctx, batch, db.conn, db.archive); err != nil {
			return moved, err
		}
		moved += int64(len(batch))
	}
}

func (db *DB) archiveCandidates(ctx context.Context, cutoff int64) ([]*Entry, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE pinned = 0 AND created_at < ? ORDER BY id LIMIT ?",
		cutoff, archiveBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive candidates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var batch []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		batch = append(batch, e)
	}
	return batch, rows.Err()
}

// Unarchive moves an archived entry back into the live store. If the live
// store already holds an unpinned copy of the same content, the newer of
// the two survives.
func (db *DB) Unarchive(ctx context.Context, id int64) error {
	if db.archive == nil {
		return ErrNoArchive
	}
	e, err := scanEntry(db.archive.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get archived entry: %w", err)
	}
	return db.moveEntries(ctx, []*Entry{e}, db.archive, db.conn)
}

// moveEntries copies entries into dst, replacing rows with the same id or
// an unpinned row with the same hash, then deletes them from src.
func (db *DB) moveEntries(ctx context.Context, entries []*Entry, src, dst *sql.DB) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		var held string
		err := tx.QueryRowContext(ctx, "SELECT hash FROM entries WHERE id = ?", e.ID).Scan(&held)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to check entry %d: %w", e.ID, err)
		case held != e.Hash:
			return fmt.Errorf("%w: entry %d", ErrIDConflict, e.ID)
		}

		var newer bool
		if !e.Pinned {
			err := tx.QueryRowContext(ctx,
				"SELECT EXISTS (SELECT 1 FROM entries WHERE hash = ? AND pinned = 0 AND id != ? AND created_at > ?)",
				e.Hash, e.ID, e.CreatedAt.UnixNano(),
			).Scan(&newer)
			if err != nil {
				return fmt.Errorf("failed to check for duplicates: %w", err)
			}
		}
		if newer {
			continue
		}
		// Explicit deletes keep the FTS triggers firing; REPLACE would not.
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entries WHERE id = ? OR (hash = ? AND pinned = 0 AND ? = 0)",
			e.ID, e.Hash, e.Pinned,
		); err != nil {
			return fmt.Errorf("failed to clear destination row: %w", err)
		}
		if _, err := insertEntry(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit move: %w", err)
	}

	for _, e := range entries {
		if _, err := src.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", e.ID); err != nil {
			return fmt.Errorf("failed to remove moved entry %d: %w", e.ID, err)
		}
	}
	return nil
}
