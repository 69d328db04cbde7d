package search

import (
	"context"
	"fmt"

	"github.com/spideyz0r/clipring/pkg/storage"
)

// Querier runs a filtered history query.
type Querier interface {
	Query(ctx context.Context, filters storage.Filters) ([]*storage.Summary, error)
}

// Search queries the history and returns matching entries.
func Search(ctx context.Context, db Querier, query string, limit int) ([]*storage.Summary, error) {
	return WithFilters(ctx, db, storage.Filters{
		Search: query,
		Limit:  limit,
	})
}

// All returns the first page of history, pinned first and then newest first.
func All(ctx context.Context, db Querier, includeArchive bool) ([]*storage.Summary, error) {
	return WithFilters(ctx, db, storage.Filters{IncludeArchive: includeArchive})
}

// WithFilters searches with custom filters.
func WithFilters(ctx context.Context, db Querier, filters storage.Filters) ([]*storage.Summary, error) {
	entries, err := db.Query(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	return entries, nil
}
