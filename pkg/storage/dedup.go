package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Save stores e. If a live unpinned entry with the same content hash
// exists, its timestamp and provenance are refreshed instead and Save
// reports touched. e.ID is set to the stored row's id either way.
func (db *DB) Save(ctx context.Context, e *Entry) (touched bool, err error) {
	if e.Hash == "" {
		e.Hash = EntryHash(e)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = db.now()
	}
	if e.Size == 0 {
		e.Size = e.ComputeSize()
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existingID, exists, err := findLiveDuplicate(ctx, tx, e.Hash)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicates: %w", err)
	}

	if exists {
		if err := touchEntry(ctx, tx, existingID, e); err != nil {
			return false, err
		}
		e.ID = existingID
	} else {
		id, err := insertEntry(ctx, tx, e)
		if err != nil {
			return false, err
		}
		e.ID = id
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit entry: %w", err)
	}
	return exists, nil
}

// findLiveDuplicate returns the id of the unpinned row carrying hash.
func findLiveDuplicate(ctx context.Context, tx *sql.Tx, hash string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM entries WHERE hash = ? AND pinned = 0", hash,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// touchEntry moves an existing row to the top with the new copy's time
// and provenance.
func touchEntry(ctx context.Context, tx *sql.Tx, id int64, e *Entry) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE entries SET created_at = ?, source_app = ?, source_process = ? WHERE id = ?",
		e.CreatedAt.UnixNano(), e.SourceApp, e.SourceProcess, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update timestamp: %w", err)
	}
	return nil
}
