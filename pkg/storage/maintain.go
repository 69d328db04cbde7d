package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// SnapshotPath returns the recovery snapshot path written by Maintain.
func SnapshotPath(path string) string {
	return path + ".bak"
}

// Maintain refreshes planner statistics, merges the full-text index,
// reclaims free pages, checkpoints the WAL and writes a recovery snapshot.
// Readers are never blocked; an interrupted run leaves the store intact.
func (db *DB) Maintain(ctx context.Context) error {
	for _, conn := range db.conns() {
		if err := housekeep(ctx, conn); err != nil {
			return err
		}
	}

	if err := db.snapshot(ctx); err != nil {
		return err
	}
	return nil
}

func housekeep(ctx context.Context, conn *sql.DB) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"optimize", "PRAGMA optimize"},
		{"fts optimize", "INSERT INTO entries_fts(entries_fts) VALUES('optimize')"},
		{"incremental vacuum", "PRAGMA incremental_vacuum"},
		{"checkpoint", "PRAGMA wal_checkpoint(PASSIVE)"},
	}
	for _, step := range steps {
		if _, err := conn.ExecContext(ctx, step.sql); err != nil {
			return fmt.Errorf("failed to run %s: %w", step.name, err)
		}
	}
	return nil
}

// snapshot writes a consistent copy of the live store next to it. The copy
// goes to a temporary file first and is renamed over the previous snapshot.
func (db *DB) snapshot(ctx context.Context) error {
	target := SnapshotPath(db.path)
	tmp := target + ".tmp"

	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale snapshot: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO "+quoteLiteral(tmp)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to install snapshot: %w", err)
	}

	slog.Debug("store snapshot written", "path", target)
	return nil
}

// quoteLiteral renders s as an SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
