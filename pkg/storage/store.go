package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no live or archived entry has the given id.
var ErrNotFound = errors.New("entry not found")

// Store defines the history operations used by the watcher, the cycling
// controller and the CLI.
type Store interface {
	Save(ctx context.Context, e *Entry) (bool, error)
	Query(ctx context.Context, filters Filters) ([]*Summary, error)
	Get(ctx context.Context, id int64) (*Summary, error)
	Payload(ctx context.Context, id int64) (*Payload, error)
	TogglePin(ctx context.Context, id int64, pinned bool) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

var _ Store = (*DB)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(s rowScanner) (*Summary, error) {
	var (
		sum       Summary
		kind      string
		thumb     []byte
		createdAt int64
		pinned    bool
	)
	err := s.Scan(
		&sum.ID,
		&kind,
		&sum.Content,
		&thumb,
		&createdAt,
		&pinned,
		&sum.SourceApp,
		&sum.SourceProcess,
		&sum.Hash,
		&sum.Size,
		&sum.HasPayload,
		&sum.HasRich,
		&sum.Truncated,
	)
	if err != nil {
		return nil, err
	}
	sum.Kind = Kind(kind)
	sum.Thumbnail = thumb
	sum.CreatedAt = time.Unix(0, createdAt)
	sum.Pinned = pinned
	return &sum, nil
}

func scanEntry(s rowScanner) (*Entry, error) {
	var (
		e         Entry
		kind      string
		rich      sql.NullString
		html      sql.NullString
		createdAt int64
	)
	err := s.Scan(
		&e.ID,
		&kind,
		&e.Content,
		&rich,
		&html,
		&e.Binary,
		&e.Thumbnail,
		&createdAt,
		&e.Pinned,
		&e.SourceApp,
		&e.SourceProcess,
		&e.Hash,
		&e.Size,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = Kind(kind)
	e.RichText = rich.String
	e.HTML = html.String
	e.CreatedAt = time.Unix(0, createdAt)
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertEntry writes e with its id when e.ID is set, otherwise lets the
// store assign one.
func insertEntry(ctx context.Context, x execer, e *Entry) (int64, error) {
	var id any
	if e.ID > 0 {
		id = e.ID
	}
	res, err := x.ExecContext(ctx,
		"INSERT INTO entries ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		id,
		string(e.Kind),
		e.Content,
		nullString(e.RichText),
		nullString(e.HTML),
		nullBytes(e.Binary),
		nullBytes(e.Thumbnail),
		e.CreatedAt.UnixNano(),
		e.Pinned,
		e.SourceApp,
		e.SourceProcess,
		e.Hash,
		e.Size,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	return res.LastInsertId()
}

// Get retrieves the summary of an entry, looking in the archive when the
// live store does not have it.
func (db *DB) Get(ctx context.Context, id int64) (*Summary, error) {
	query := "SELECT " + summaryColumns + " FROM entries WHERE id = ?"

	sum, err := scanSummary(db.conn.QueryRowContext(ctx, query, id))
	if err == nil {
		return sum, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}

	if db.archive == nil {
		return nil, ErrNotFound
	}
	sum, err = scanSummary(db.archive.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archived entry: %w", err)
	}
	sum.Archived = true
	return sum, nil
}

// GetEntry retrieves a full entry, large fields included.
func (db *DB) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	query := "SELECT " + entryColumns + " FROM entries WHERE id = ?"
	for _, conn := range db.conns() {
		e, err := scanEntry(conn.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get entry: %w", err)
		}
		return e, nil
	}
	return nil, ErrNotFound
}

// Payload loads the large fields of an entry, its full text included.
func (db *DB) Payload(ctx context.Context, id int64) (*Payload, error) {
	query := "SELECT body, payload, rich_text, html FROM entries WHERE id = ?"
	for _, conn := range db.conns() {
		var (
			p          Payload
			rich, html sql.NullString
		)
		err := conn.QueryRowContext(ctx, query, id).Scan(&p.Text, &p.Binary, &rich, &html)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load payload: %w", err)
		}
		p.RichText = rich.String
		p.HTML = html.String
		return &p, nil
	}
	return nil, ErrNotFound
}

// GetPayload returns the binary payload of an entry.
func (db *DB) GetPayload(ctx context.Context, id int64) ([]byte, error) {
	p, err := db.Payload(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Binary, nil
}

// GetRichVariants returns the rich text and HTML variants of an entry.
func (db *DB) GetRichVariants(ctx context.Context, id int64) (string, string, error) {
	p, err := db.Payload(ctx, id)
	if err != nil {
		return "", "", err
	}
	return p.RichText, p.HTML, nil
}

// conns returns the live store followed by the archive, if open.
func (db *DB) conns() []*sql.DB {
	if db.archive == nil {
		return []*sql.DB{db.conn}
	}
	return []*sql.DB{db.conn, db.archive}
}

// TogglePin pins or unpins a live entry. Unpinning an entry whose content
// already has an unpinned twin merges the two, keeping the newer timestamp.
func (db *DB) TogglePin(ctx context.Context, id int64, pinned bool) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		hash      string
		createdAt int64
	)
	err = tx.QueryRowContext(ctx, "SELECT hash, created_at FROM entries WHERE id = ?", id).Scan(&hash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	if !pinned {
		var twinID, twinCreated int64
		err := tx.QueryRowContext(ctx,
			"SELECT id, created_at FROM entries WHERE hash = ? AND pinned = 0 AND id != ?",
			hash, id,
		).Scan(&twinID, &twinCreated)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", twinID); err != nil {
				return fmt.Errorf("failed to merge duplicate: %w", err)
			}
			createdAt = max(createdAt, twinCreated)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check for duplicates: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE entries SET pinned = ?, created_at = ? WHERE id = ?",
		pinned, createdAt, id,
	); err != nil {
		return fmt.Errorf("failed to update pin: %w", err)
	}

	return tx.Commit()
}

// Delete removes an unpinned entry. Deleting a pinned entry is a no-op.
func (db *DB) Delete(ctx context.Context, id int64) error {
	for _, conn := range db.conns() {
		var pinned bool
		err := conn.QueryRowContext(ctx, "SELECT pinned FROM entries WHERE id = ?", id).Scan(&pinned)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to get entry: %w", err)
		}
		if pinned {
			return nil
		}
		if _, err := conn.ExecContext(ctx, "DELETE FROM entries WHERE id = ? AND pinned = 0", id); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		return nil
	}
	return ErrNotFound
}

// DeleteBySource removes every unpinned entry copied from app.
func (db *DB) DeleteBySource(ctx context.Context, app string) (int64, error) {
	return db.deleteWhere(ctx, "source_app = ? AND pinned = 0", app)
}

// ClearAll removes every entry from the live store and the archive,
// pinned entries included.
func (db *DB) ClearAll(ctx context.Context) (int64, error) {
	return db.deleteWhere(ctx, "1 = 1")
}

// deleteWhere runs a DELETE with the given condition against every shard.
func (db *DB) deleteWhere(ctx context.Context, cond string, args ...any) (int64, error) {
	var total int64
	for _, conn := range db.conns() {
		result, err := conn.ExecContext(ctx, "DELETE FROM entries WHERE "+cond, args...)
		if err != nil {
			return total, fmt.Errorf("failed to delete entries: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// Count returns the number of live entries.
func (db *DB) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// CountArchived returns the number of archived entries.
func (db *DB) CountArchived(ctx context.Context) (int64, error) {
	if db.archive == nil {
		return 0, nil
	}
	var count int64
	if err := db.archive.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archived entries: %w", err)
	}
	return count, nil
}

// TotalSize returns the summed stored size of live entries in bytes.
func (db *DB) TotalSize(ctx context.Context) (int64, error) {
	var size int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(SUM(size), 0) FROM entries").Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum entry sizes: %w", err)
	}
	return size, nil
}

// Each calls fn for every live entry in id order, large fields included.
// Iteration stops at the first error fn returns.
func (db *DB) Each(ctx context.Context, fn func(*Entry) error) error {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+entryColumns+" FROM entries ORDER BY id")
	if err != nil {
		return fmt.Errorf("failed to scan entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

// EachSummary calls fn for every live entry, newest first, without loading
// payloads.
func (db *DB) EachSummary(ctx context.Context, fn func(*Summary) error) error {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+summaryColumns+" FROM entries ORDER BY pinned DESC, created_at DESC, id DESC")
	if err != nil {
		return fmt.Errorf("failed to scan entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return fmt.Errorf("failed to scan entry: %w", err)
		}
		if err := fn(s); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

// Import inserts entries verbatim, ids included, in one transaction.
func (db *DB) Import(ctx context.Context, entries []*Entry) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if e.Hash == "" {
			e.Hash = EntryHash(e)
		}
		if _, err := insertEntry(ctx, tx, e); err != nil {
			return fmt.Errorf("failed to import entry %d: %w", e.ID, err)
		}
	}

	return tx.Commit()
}
