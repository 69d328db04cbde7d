package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode"
)

// PageSize caps every query result.
const PageSize = 100

// Filters narrows a history query.
type Filters struct {
	// Search is a query-language string: free tokens match word prefixes,
	// app:<name> and type:<kind> constrain provenance and kind.
	Search string
	// Contains is a raw, case-insensitive substring filter on the content.
	Contains       string
	Kind           Kind
	SourceApp      string
	IncludeArchive bool
	Limit          int
}

// parsedQuery is the tokenised form of Filters.Search.
type parsedQuery struct {
	Terms []string
	Apps  []string
	Kinds []string
}

func (q parsedQuery) empty() bool {
	return len(q.Terms) == 0 && len(q.Apps) == 0 && len(q.Kinds) == 0
}

func parseQuery(search string) parsedQuery {
	var q parsedQuery
	for _, tok := range strings.Fields(search) {
		lower := strings.ToLower(tok)
		switch {
		case strings.HasPrefix(lower, "app:") && len(tok) > len("app:"):
			q.Apps = append(q.Apps, tok[len("app:"):])
		case strings.HasPrefix(lower, "type:") && len(tok) > len("type:"):
			v := tok[len("type:"):]
			if k, ok := ParseKind(v); ok {
				v = string(k)
			}
			q.Kinds = append(q.Kinds, v)
		default:
			q.Terms = append(q.Terms, tok)
		}
	}
	return q
}

// quoteFTS renders tok as an FTS5 string literal.
func quoteFTS(tok string) string {
	return `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
}

// indexable reports whether the tokenizer would produce a term from tok.
func indexable(tok string) bool {
	return strings.IndexFunc(tok, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// ftsExpression builds the MATCH expression for q. Column names are fixed;
// every user token is quoted. Tokens with no indexable characters are left
// to the substring fallback.
func ftsExpression(q parsedQuery) string {
	var parts []string
	for _, t := range q.Terms {
		if indexable(t) {
			parts = append(parts, quoteFTS(t)+"*")
		}
	}
	for _, a := range q.Apps {
		if indexable(a) {
			parts = append(parts, "source_app : "+quoteFTS(a)+"*")
		}
	}
	for _, k := range q.Kinds {
		if indexable(k) {
			parts = append(parts, "kind : "+quoteFTS(k))
		}
	}
	return strings.Join(parts, " AND ")
}

// escapeLike escapes LIKE wildcards; the query must use ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Query returns entries ordered pinned first, then newest first, capped at
// PageSize.
func (db *DB) Query(ctx context.Context, filters Filters) ([]*Summary, error) {
	limit := PageSize
	if filters.Limit > 0 && filters.Limit < PageSize {
		limit = filters.Limit
	}

	results, err := db.queryShard(ctx, db.conn, filters, limit)
	if err != nil {
		return nil, err
	}

	if filters.IncludeArchive && db.archive != nil {
		archived, err := db.queryShard(ctx, db.archive, filters, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to query archive: %w", err)
		}
		for _, s := range archived {
			s.Archived = true
		}
		results = mergeSummaries(results, archived, limit)
	}

	return results, nil
}

// Recent returns the first page of history with no filters.
func (db *DB) Recent(ctx context.Context) ([]*Summary, error) {
	return db.Query(ctx, Filters{})
}

func (db *DB) queryShard(ctx context.Context, conn *sql.DB, filters Filters, limit int) ([]*Summary, error) {
	q := parseQuery(filters.Search)
	if q.empty() {
		return runQuery(ctx, conn, filters, "", nil, limit)
	}

	if expr := ftsExpression(q); expr != "" {
		results, err := runQuery(ctx, conn, filters, expr, nil, limit)
		if err != nil {
			slog.Debug("full-text query failed, using substring match", "err", err)
		} else if len(results) > 0 || len(q.Terms) == 0 {
			return results, nil
		}
	}

	// Substring fallback
	return runQuery(ctx, conn, filters, "", &q, limit)
}

// runQuery executes one query. match is an FTS5 expression; fallback, when
// set, applies the parsed tokens as substring filters instead.
func runQuery(ctx context.Context, conn *sql.DB, filters Filters, match string, fallback *parsedQuery, limit int) ([]*Summary, error) {
	query := "SELECT " + summaryColumns + " FROM entries WHERE 1=1"
	args := []any{}

	if match != "" {
		query += " AND id IN (SELECT rowid FROM entries_fts WHERE entries_fts MATCH ?)"
		args = append(args, match)
	}

	if fallback != nil {
		for _, t := range fallback.Terms {
			query += ` AND body LIKE ? ESCAPE '\'`
			args = append(args, "%"+escapeLike(t)+"%")
		}
		for _, a := range fallback.Apps {
			query += ` AND source_app LIKE ? ESCAPE '\'`
			args = append(args, escapeLike(a)+"%")
		}
		for _, k := range fallback.Kinds {
			query += " AND kind = ?"
			args = append(args, k)
		}
	}

	if filters.Contains != "" {
		query += ` AND body LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(filters.Contains)+"%")
	}

	if filters.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filters.Kind))
	}

	if filters.SourceApp != "" {
		query += " AND source_app = ?"
		args = append(args, filters.SourceApp)
	}

	query += " ORDER BY pinned DESC, created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var results []*Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		results = append(results, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return results, nil
}

// mergeSummaries merges two ordered result sets and truncates to limit.
func mergeSummaries(a, b []*Summary, limit int) []*Summary {
	out := append(slices.Clip(a), b...)
	slices.SortStableFunc(out, func(x, y *Summary) int {
		if x.Pinned != y.Pinned {
			if x.Pinned {
				return -1
			}
			return 1
		}
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		switch {
		case x.ID > y.ID:
			return -1
		case x.ID < y.ID:
			return 1
		}
		return 0
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
