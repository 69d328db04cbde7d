package storage

import (
	"context"
	"fmt"
)

// DefaultHeavyThreshold is the size above which DeleteLarger treats an
// entry as heavy.
const DefaultHeavyThreshold = 2 << 20

// TrimByCount deletes the oldest unpinned entries until at most max live
// entries remain or no unpinned entries are left.
func (db *DB) TrimByCount(ctx context.Context, max int) (int64, error) {
	if max < 0 {
		return 0, fmt.Errorf("invalid max count: %d", max)
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.conn.ExecContext(ctx, `
		DELETE FROM entries WHERE id IN (
			SELECT id FROM entries WHERE pinned = 0
			ORDER BY created_at ASC, id ASC
			LIMIT max(0, (SELECT COUNT(*) FROM entries) - ?)
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to trim entries: %w", err)
	}
	return result.RowsAffected()
}

// TrimBySize deletes the oldest unpinned entries until the total stored
// size is at most maxBytes or no unpinned entries are left.
func (db *DB) TrimBySize(ctx context.Context, maxBytes int64) (int64, error) {
	if maxBytes < 0 {
		return 0, fmt.Errorf("invalid max size: %d", maxBytes)
	}

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(SUM(size), 0) FROM entries").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum entry sizes: %w", err)
	}
	if total <= maxBytes {
		return 0, nil
	}

	rows, err := tx.QueryContext(ctx,
		"SELECT id, size FROM entries WHERE pinned = 0 ORDER BY created_at ASC, id ASC")
	if err != nil {
		return 0, fmt.Errorf("failed to list entries: %w", err)
	}

	var victims []int64
	for total > maxBytes && rows.Next() {
		var id, size int64
		if err := rows.Scan(&id, &size); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan entry: %w", err)
		}
		victims = append(victims, id)
		total -= size
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating rows: %w", err)
	}
	rows.Close()

	for _, id := range victims {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id); err != nil {
			return 0, fmt.Errorf("failed to delete entry %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit trim: %w", err)
	}
	return int64(len(victims)), nil
}

// DeleteByKind removes every unpinned live entry of the given kind.
func (db *DB) DeleteByKind(ctx context.Context, kind Kind) (int64, error) {
	return db.deleteLive(ctx, "kind = ? AND pinned = 0", string(kind))
}

// DeleteLarger removes every unpinned live entry larger than bytes.
func (db *DB) DeleteLarger(ctx context.Context, bytes int64) (int64, error) {
	return db.deleteLive(ctx, "size > ? AND pinned = 0", bytes)
}

func (db *DB) deleteLive(ctx context.Context, cond string, args ...any) (int64, error) {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM entries WHERE "+cond, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries: %w", err)
	}
	return result.RowsAffected()
}
