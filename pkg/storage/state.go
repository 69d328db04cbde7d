package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	stateCursorIndex     = "cycle.index"
	stateCursorCommitted = "cycle.committed_at"
)

// Cursor is the persisted cycling position.
type Cursor struct {
	Index       int
	CommittedAt time.Time
}

// LoadCursor returns the persisted cursor, or the zero cursor if none was
// saved.
func (db *DB) LoadCursor(ctx context.Context) (Cursor, error) {
	var c Cursor

	idx, err := db.getState(ctx, stateCursorIndex)
	if err != nil {
		return c, err
	}
	if idx != "" {
		n, err := strconv.Atoi(idx)
		if err != nil {
			return c, fmt.Errorf("invalid cursor index %q: %w", idx, err)
		}
		c.Index = n
	}

	at, err := db.getState(ctx, stateCursorCommitted)
	if err != nil {
		return c, err
	}
	if at != "" {
		n, err := strconv.ParseInt(at, 10, 64)
		if err != nil {
			return c, fmt.Errorf("invalid cursor time %q: %w", at, err)
		}
		if n != 0 {
			c.CommittedAt = time.Unix(0, n)
		}
	}

	return c, nil
}

// SaveCursor persists the cycling position.
func (db *DB) SaveCursor(ctx context.Context, c Cursor) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var committed int64
	if !c.CommittedAt.IsZero() {
		committed = c.CommittedAt.UnixNano()
	}

	for key, value := range map[string]string{
		stateCursorIndex:     strconv.Itoa(c.Index),
		stateCursorCommitted: strconv.FormatInt(committed, 10),
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (db *DB) getState(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}
